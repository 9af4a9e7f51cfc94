package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/facility-registry/internal/model"
)

// table is an insertion-ordered arena of entities keyed by id.
type table[T any] struct {
	rows  map[string]*T
	order []string
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]*T)}
}

func (t *table[T]) put(id string, v *T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) delete(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
}

func (t *table[T]) each(fn func(*T)) {
	for _, id := range t.order {
		fn(t.rows[id])
	}
}

// MemoryStore implements Store in process memory. It backs tests and the
// default single-node deployment.
type MemoryStore struct {
	mu        sync.RWMutex
	factories table[model.Factory]
	addresses table[model.Address]
	geos      table[model.Geo]
	sources   table[model.Source]
	temps     table[model.Temp]
	confirms  table[model.Confirm]
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		factories: newTable[model.Factory](),
		addresses: newTable[model.Address](),
		geos:      newTable[model.Geo](),
		sources:   newTable[model.Source](),
		temps:     newTable[model.Temp](),
		confirms:  newTable[model.Confirm](),
	}
}

var _ Store = (*MemoryStore)(nil)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func notFound(kind, id string) error {
	return eris.Wrapf(model.ErrNotFound, "store: %s %s", kind, id)
}

func appendUnique(list []string, id string) ([]string, bool) {
	if slices.Contains(list, id) {
		return list, false
	}
	return append(list, id), true
}

func (m *MemoryStore) ListCandidates(_ context.Context, country string) ([]model.FactoryAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.FactoryAddress
	m.addresses.each(func(a *model.Address) {
		if country != "" && !sameCountry(a.Country, country) {
			return
		}
		for _, fid := range a.RelatedFactory {
			f, ok := m.factories.get(fid)
			if !ok {
				continue
			}
			out = append(out, model.FactoryAddress{
				FactoryID: f.ID,
				AddressID: a.ID,
				Name:      f.Name,
				Address:   a.Address,
				Country:   a.Country,
			})
		}
	})
	return out, nil
}

func (m *MemoryStore) ListReports(_ context.Context, q ReportQuery) ([]model.FacilityReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.FacilityReport
	m.geos.each(func(g *model.Geo) {
		if q.Country != "" && !sameCountry(g.Country, q.Country) {
			return
		}
		for _, aid := range g.RelatedAddress {
			a, ok := m.addresses.get(aid)
			if !ok || !sameCountry(a.Country, g.Country) {
				continue
			}
			for _, fid := range a.RelatedFactory {
				f, ok := m.factories.get(fid)
				if !ok || !matchesName(f.Name, q.NamePattern) {
					continue
				}
				out = append(out, model.FacilityReport{
					GeoID:        g.ID,
					Latitude:     g.Latitude,
					Longitude:    g.Longitude,
					Country:      g.Country,
					GeoUpdatedAt: g.UpdatedAt,
					FactoryID:    f.ID,
					AddressID:    a.ID,
					Name:         f.Name,
					Address:      a.Address,
					Sources:      m.sourceRefs(f.SourceIDs),
					Confirmed:    m.confirmRefs(f.ID, a.ID),
				})
			}
		}
	})
	return out, nil
}

func (m *MemoryStore) sourceRefs(ids []string) []model.SourceRef {
	refs := make([]model.SourceRef, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sources.get(id); ok {
			refs = append(refs, s.Ref())
		}
	}
	return refs
}

func (m *MemoryStore) confirmRefs(factoryID, addressID string) []model.ConfirmRef {
	var refs []model.ConfirmRef
	m.confirms.each(func(c *model.Confirm) {
		if c.FactoryID == factoryID && c.AddressID == addressID {
			refs = append(refs, model.ConfirmRef{
				ID:             c.ID,
				SourceID:       c.SourceID,
				ClaimedName:    c.ClaimedName,
				ClaimedAddress: c.ClaimedAddress,
			})
		}
	})
	return refs
}

func (m *MemoryStore) CreateFactory(_ context.Context, f model.Factory) (*model.Factory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.ID = newID(f.ID)
	ids := make([]string, 0, len(f.SourceIDs))
	for _, id := range f.SourceIDs {
		ids, _ = appendUnique(ids, id)
	}
	f.SourceIDs = ids
	m.factories.put(f.ID, &f)
	out := f
	out.SourceIDs = slices.Clone(f.SourceIDs)
	return &out, nil
}

func (m *MemoryStore) AddFactorySource(_ context.Context, factoryID, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.factories.get(factoryID)
	if !ok {
		return notFound("factory", factoryID)
	}
	f.SourceIDs, _ = appendUnique(f.SourceIDs, sourceID)
	return nil
}

func (m *MemoryStore) CreateAddress(_ context.Context, a model.Address) (*model.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.ID = newID(a.ID)
	a.RelatedFactory = slices.Clone(a.RelatedFactory)
	if a.RelatedFactory == nil {
		a.RelatedFactory = []string{}
	}
	m.addresses.put(a.ID, &a)
	out := a
	out.RelatedFactory = slices.Clone(a.RelatedFactory)
	return &out, nil
}

func (m *MemoryStore) RelateAddressFactory(_ context.Context, addressID, factoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses.get(addressID)
	if !ok {
		return notFound("address", addressID)
	}
	if _, ok := m.factories.get(factoryID); !ok {
		return notFound("factory", factoryID)
	}
	a.RelatedFactory, _ = appendUnique(a.RelatedFactory, factoryID)
	return nil
}

func (m *MemoryStore) FindOrCreateGeo(_ context.Context, lat, lng float64, country string, now time.Time) (*model.Geo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *model.Geo
	m.geos.each(func(g *model.Geo) {
		if found == nil && g.Latitude == lat && g.Longitude == lng && sameCountry(g.Country, country) {
			found = g
		}
	})
	if found == nil {
		found = &model.Geo{
			ID:             uuid.New().String(),
			Latitude:       lat,
			Longitude:      lng,
			Country:        country,
			RelatedAddress: []string{},
			CreatedAt:      now,
		}
		m.geos.put(found.ID, found)
	}
	found.UpdatedAt = now

	out := *found
	out.RelatedAddress = slices.Clone(found.RelatedAddress)
	return &out, nil
}

func (m *MemoryStore) RelateGeoAddress(_ context.Context, geoID, addressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.geos.get(geoID)
	if !ok {
		return notFound("geo", geoID)
	}
	a, ok := m.addresses.get(addressID)
	if !ok {
		return notFound("address", addressID)
	}
	if !sameCountry(g.Country, a.Country) {
		return eris.Wrapf(model.ErrCountryMismatch, "store: geo %s (%s) address %s (%s)", g.ID, g.Country, a.ID, a.Country)
	}
	g.RelatedAddress, _ = appendUnique(g.RelatedAddress, addressID)
	return nil
}

func (m *MemoryStore) FindOrCreateSource(_ context.Context, key model.SourceKey, userType string, file model.UploadFile, now time.Time) (*model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nameKey := sourceNameKey(key.Name)
	var found *model.Source
	m.sources.each(func(s *model.Source) {
		if found == nil && s.UploaderID == key.UploaderID && sourceNameKey(s.Name) == nameKey {
			found = s
		}
	})
	if found == nil {
		found = &model.Source{
			ID:         uuid.New().String(),
			UploaderID: key.UploaderID,
			UserType:   userType,
			Files:      []model.UploadFile{},
			CreatedAt:  now,
		}
		m.sources.put(found.ID, found)
	}
	found.Name = key.Name
	if file.ID != "" {
		found.AppendFile(file)
	}
	found.UpdatedAt = now

	return cloneSource(found), nil
}

func cloneSource(s *model.Source) *model.Source {
	out := *s
	out.Files = slices.Clone(s.Files)
	return &out
}

func (m *MemoryStore) DuplicateSources(_ context.Context) ([][]model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := make(map[model.SourceKey]int)
	var groups [][]model.Source
	m.sources.each(func(s *model.Source) {
		k := model.SourceKey{UploaderID: s.UploaderID, Name: sourceNameKey(s.Name)}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], *cloneSource(s))
	})

	var dups [][]model.Source
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		sort.SliceStable(g, func(i, j int) bool { return g[i].CreatedAt.Before(g[j].CreatedAt) })
		dups = append(dups, g)
	}
	return dups, nil
}

func (m *MemoryStore) MergeSources(_ context.Context, keep model.Source, duplicateIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.sources.get(keep.ID)
	if !ok {
		return notFound("source", keep.ID)
	}
	k.Name = keep.Name
	k.Files = slices.Clone(keep.Files)
	k.UpdatedAt = keep.UpdatedAt

	dup := make(map[string]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		if id != keep.ID {
			dup[id] = true
		}
	}

	m.factories.each(func(f *model.Factory) {
		ids := make([]string, 0, len(f.SourceIDs))
		for _, id := range f.SourceIDs {
			if dup[id] {
				id = keep.ID
			}
			ids, _ = appendUnique(ids, id)
		}
		f.SourceIDs = ids
	})
	m.confirms.each(func(c *model.Confirm) {
		if dup[c.SourceID] {
			c.SourceID = keep.ID
		}
	})
	m.temps.each(func(t *model.Temp) {
		if dup[t.SourceID] {
			t.SourceID = keep.ID
		}
	})
	for id := range dup {
		m.sources.delete(id)
	}
	return nil
}

func (m *MemoryStore) EnqueueTemps(_ context.Context, temps []model.Temp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range temps {
		t.ID = newID(t.ID)
		if t.Status == "" {
			t.Status = model.TempUnprocessed
		}
		t.Matches = slices.Clone(t.Matches)
		m.temps.put(t.ID, &t)
	}
	return nil
}

// ClaimTemps flips up to limit Unprocessed rows, oldest first, to Processing.
func (m *MemoryStore) ClaimTemps(_ context.Context, limit int, now time.Time) ([]model.Temp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*model.Temp
	m.temps.each(func(t *model.Temp) {
		if t.Status == model.TempUnprocessed && t.Processed == nil {
			pending = append(pending, t)
		}
	})
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]model.Temp, 0, len(pending))
	for _, t := range pending {
		claimedAt := now
		t.Status = model.TempProcessing
		t.ClaimedAt = &claimedAt
		t.UpdatedAt = now
		claimed = append(claimed, *cloneTemp(t))
	}
	return claimed, nil
}

func cloneTemp(t *model.Temp) *model.Temp {
	out := *t
	out.Matches = slices.Clone(t.Matches)
	return &out
}

// CompleteTemp records the resolution of a Processing row. A row that is no
// longer Processing is left untouched and reported as not found.
func (m *MemoryStore) CompleteTemp(_ context.Context, t model.Temp, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.temps.get(t.ID)
	if !ok || cur.Status != model.TempProcessing {
		return notFound("processing temp", t.ID)
	}
	processed := now
	cur.Status = model.TempProcessed
	cur.Processed = &processed
	cur.Matches = slices.Clone(t.Matches)
	cur.SourceID = t.SourceID
	cur.FactoryID = t.FactoryID
	cur.AddressID = t.AddressID
	cur.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ReclaimStale(_ context.Context, claimedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	m.temps.each(func(t *model.Temp) {
		if t.Status != model.TempProcessing || t.Processed != nil {
			return
		}
		if t.ClaimedAt != nil && !t.ClaimedAt.Before(claimedBefore) {
			return
		}
		t.Status = model.TempUnprocessed
		t.ClaimedAt = nil
		n++
	})
	return n, nil
}

func (m *MemoryStore) GetTemp(_ context.Context, id string) (*model.Temp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.temps.get(id)
	if !ok {
		return nil, notFound("temp", id)
	}
	return cloneTemp(t), nil
}

func (m *MemoryStore) SetMatchConfirmed(_ context.Context, tempID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.temps.get(tempID)
	if !ok {
		return notFound("temp", tempID)
	}
	if index < 0 || index >= len(t.Matches) {
		return eris.Wrapf(model.ErrNotFound, "store: temp %s has no match %d", tempID, index)
	}
	t.Matches[index].Confirm = true
	return nil
}

func (m *MemoryStore) CreateConfirm(_ context.Context, c model.Confirm) (*model.Confirm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = newID(c.ID)
	m.confirms.put(c.ID, &c)
	out := c
	return &out, nil
}

func (m *MemoryStore) FindConfirm(_ context.Context, tempID, matchedID string) (*model.Confirm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *model.Confirm
	m.confirms.each(func(c *model.Confirm) {
		if found == nil && c.TempID == tempID && c.MatchedID == matchedID {
			out := *c
			found = &out
		}
	})
	if found == nil {
		return nil, notFound("confirm for temp", tempID)
	}
	return found, nil
}

func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }
