// Package recency suppresses provenance that a contributor has superseded
// with a newer upload of their own.
package recency

import (
	"github.com/sells-group/facility-registry/internal/model"
)

// Options controls stale-source suppression.
type Options struct {
	// SeedUploaderIDs are master accounts whose provenance is always kept.
	SeedUploaderIDs []string
}

// Filter is a reusable stale-source filter.
type Filter struct {
	seeds map[string]struct{}
}

// New builds a Filter from opts.
func New(opts Options) *Filter {
	seeds := make(map[string]struct{}, len(opts.SeedUploaderIDs))
	for _, id := range opts.SeedUploaderIDs {
		if id != "" {
			seeds[id] = struct{}{}
		}
	}
	return &Filter{seeds: seeds}
}

// FilterStale is shorthand for New(opts).Apply(records).
func FilterStale(records []model.CanonicalFacility, opts Options) []model.CanonicalFacility {
	return New(opts).Apply(records)
}

// Apply returns records with stale sources removed. A record left with no
// sources is dropped. The input is not modified.
func (f *Filter) Apply(records []model.CanonicalFacility) []model.CanonicalFacility {
	out := make([]model.CanonicalFacility, 0, len(records))
	for _, r := range records {
		kept := make([]model.SourceRef, 0, len(r.Sources))
		for _, s := range r.Sources {
			if f.Retain(s, r) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			continue
		}
		r.Sources = kept
		out = append(out, r)
	}
	return out
}

// Retain reports whether s still counts as provenance for r. A merged source
// is judged against the geo record that carried it.
func (f *Filter) Retain(s model.SourceRef, r model.CanonicalFacility) bool {
	if f.IsSeed(s) {
		return true
	}
	if s.FileCount <= 1 {
		return true
	}
	geoAt := s.GeoUpdatedAt
	if geoAt.IsZero() {
		geoAt = r.GeoUpdatedAt
	}
	return !s.LatestUpload.After(geoAt)
}

// IsSeed reports whether s belongs to a seed account.
func (f *Filter) IsSeed(s model.SourceRef) bool {
	if s.UserType == model.UserTypeSeed {
		return true
	}
	_, ok := f.seeds[s.UploaderID]
	return ok
}

// FilterContributors keeps records whose sources include at least one of the
// given uploader ids. An empty id set keeps everything.
func FilterContributors(records []model.CanonicalFacility, uploaderIDs []string) []model.CanonicalFacility {
	if len(uploaderIDs) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(uploaderIDs))
	for _, id := range uploaderIDs {
		want[id] = struct{}{}
	}

	out := make([]model.CanonicalFacility, 0, len(records))
	for _, r := range records {
		for _, s := range r.Sources {
			if _, ok := want[s.UploaderID]; ok {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
