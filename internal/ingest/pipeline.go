// Package ingest moves uploaded rows through Unprocessed -> Processing ->
// Processed, resolving each into the facility graph.
//
// A sweep claims a page of rows, resolves their Sources one at a time in
// upload order (at most one find-or-create in flight per uploader), then
// matches and persists the rows in parallel.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/facility-registry/internal/geocode"
	"github.com/sells-group/facility-registry/internal/match"
	"github.com/sells-group/facility-registry/internal/metrics"
	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/resilience"
	"github.com/sells-group/facility-registry/internal/store"
)

// Defaults for Options.
const (
	DefaultPageSize          = 100
	DefaultProcessingTimeout = 15 * time.Minute
	DefaultMaxCandidates     = 5
)

// Options tunes the pipeline.
type Options struct {
	PageSize          int
	ProcessingTimeout time.Duration
	MaxCandidates     int
	// Concurrency bounds the parallel per-row phase. Zero is unbounded.
	Concurrency int
	Retry       resilience.RetryConfig
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PageSize:          DefaultPageSize,
		ProcessingTimeout: DefaultProcessingTimeout,
		MaxCandidates:     DefaultMaxCandidates,
		Retry:             resilience.DefaultRetryConfig(),
	}
}

// Pipeline runs ingestion sweeps against a Store.
type Pipeline struct {
	store    store.Store
	matcher  *match.Matcher
	geocoder geocode.Provider
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
	sources  *keyLock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics records ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. A nil geocoder reads row-supplied coordinates.
func New(st store.Store, matcher *match.Matcher, geocoder geocode.Provider, opts Options, options ...Option) *Pipeline {
	if geocoder == nil {
		geocoder = geocode.RowProvider{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = DefaultProcessingTimeout
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("ingest", "store_write")
	}
	p := &Pipeline{
		store:    st,
		matcher:  matcher,
		geocoder: geocoder,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		sources:  newKeyLock(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// resolved pairs a claimed row with its Source.
type resolved struct {
	temp   model.Temp
	source *model.Source
}

// Sweep claims up to one page of Unprocessed rows (capped at maxRows when
// positive) and resolves them. It returns the number of rows that reached
// Processed. Rows that fail stay Processing for the reclaim sweep; the first
// failure is returned alongside the count.
func (p *Pipeline) Sweep(ctx context.Context, maxRows int) (int, error) {
	start := time.Now()
	defer func() { p.metrics.ObserveSweep(time.Since(start)) }()

	limit := p.opts.PageSize
	if maxRows > 0 && maxRows < limit {
		limit = maxRows
	}

	claimed, err := p.store.ClaimTemps(ctx, limit, p.now())
	if err != nil {
		return 0, eris.Wrap(err, "ingest: claim")
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	log := zap.L().With(zap.Int("claimed", len(claimed)))
	log.Info("ingest: sweep claimed rows")

	var (
		mu       sync.Mutex
		firstErr error
		failed   int
	)
	fail := func(t model.Temp, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed++
		if firstErr == nil {
			firstErr = err
		}
		log.Warn("ingest: row left processing", zap.String("temp_id", t.ID), zap.Error(err))
	}

	// Source resolution: sequential, in claim order.
	ready := make([]resolved, 0, len(claimed))
	for _, t := range claimed {
		if err := ctx.Err(); err != nil {
			fail(t, err)
			continue
		}
		src, err := p.resolveSource(ctx, t)
		if err != nil {
			fail(t, err)
			continue
		}
		ready = append(ready, resolved{temp: t, source: src})
	}

	// Per-row work: independent once the Source is fixed.
	var g errgroup.Group
	if p.opts.Concurrency > 0 {
		g.SetLimit(p.opts.Concurrency)
	}
	var processed int
	for _, r := range ready {
		g.Go(func() error {
			if err := p.resolveRow(ctx, r.temp, r.source); err != nil {
				fail(r.temp, err)
				return nil
			}
			mu.Lock()
			processed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.metrics.AddRows(metrics.OutcomeProcessed, processed)
	p.metrics.AddRows(metrics.OutcomeFailed, failed)
	log.Info("ingest: sweep complete", zap.Int("processed", processed), zap.Int("failed", failed))

	if firstErr != nil {
		return processed, eris.Wrapf(firstErr, "ingest: %d of %d rows failed", failed, len(claimed))
	}
	return processed, nil
}

// resolveSource finds or creates the row's Source under its uploader lock.
func (p *Pipeline) resolveSource(ctx context.Context, t model.Temp) (*model.Source, error) {
	unlock := p.sources.Lock(t.UploaderID)
	defer unlock()

	userType := t.UserType
	if userType == "" {
		userType = model.UserTypeContributor
	}
	src, err := resilience.DoVal(ctx, p.opts.Retry, func(ctx context.Context) (*model.Source, error) {
		return p.store.FindOrCreateSource(ctx, t.SourceKey(), userType, t.File, p.now())
	})
	return src, eris.Wrapf(err, "ingest: resolve source for temp %s", t.ID)
}

// resolveRow geocodes, matches and links one row, then completes it. A
// transient geocoder failure leaves the row Processing for the reclaim sweep.
func (p *Pipeline) resolveRow(ctx context.Context, t model.Temp, src *model.Source) error {
	log := zap.L().With(zap.String("temp_id", t.ID), zap.String("source_id", src.ID))

	geo, err := resilience.DoVal(ctx, p.opts.Retry, func(ctx context.Context) (*geocode.Result, error) {
		return p.geocoder.Geocode(ctx, t.Row)
	})
	switch {
	case err == nil:
	case resilience.IsTransient(err):
		return eris.Wrapf(err, "ingest: geocode temp %s", t.ID)
	default:
		log.Warn("ingest: geocode failed, continuing without point", zap.Error(err))
		geo = nil
	}

	result, err := p.matcher.Match(ctx, match.Query{Country: t.Row.Country, Name: t.Row.Name, Address: t.Row.Address})
	if err != nil {
		return eris.Wrapf(err, "ingest: match temp %s", t.ID)
	}
	t.Matches = topMatches(result.Matched, p.opts.MaxCandidates)
	t.SourceID = src.ID

	if len(result.Matched) > 0 && result.Matched[0].Exact() {
		best := result.Matched[0]
		if err := p.retry(ctx, func(ctx context.Context) error {
			return p.store.AddFactorySource(ctx, best.FactoryID, src.ID)
		}); err != nil {
			return eris.Wrapf(err, "ingest: attach source to factory %s", best.FactoryID)
		}
		t.FactoryID, t.AddressID = best.FactoryID, best.AddressID
		log.Debug("ingest: exact match", zap.String("factory_id", best.FactoryID))
	} else {
		now := p.now()
		f, err := p.store.CreateFactory(ctx, model.Factory{
			Name:      t.Row.Name,
			Country:   t.Row.Country,
			SourceIDs: []string{src.ID},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return eris.Wrapf(err, "ingest: create factory for temp %s", t.ID)
		}
		a, err := p.store.CreateAddress(ctx, model.Address{
			Address:   t.Row.Address,
			Country:   t.Row.Country,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return eris.Wrapf(err, "ingest: create address for temp %s", t.ID)
		}
		if err := p.retry(ctx, func(ctx context.Context) error {
			return p.store.RelateAddressFactory(ctx, a.ID, f.ID)
		}); err != nil {
			return eris.Wrapf(err, "ingest: relate address %s", a.ID)
		}
		t.FactoryID, t.AddressID = f.ID, a.ID
	}

	if geo != nil && geo.Matched {
		if err := p.linkGeo(ctx, geo, t.AddressID, t.Row.Country); err != nil {
			return err
		}
	}

	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.CompleteTemp(ctx, t, p.now())
	}); err != nil {
		return eris.Wrapf(err, "ingest: complete temp %s", t.ID)
	}
	return nil
}

// linkGeo finds or creates the point and relates the address to it. A
// country mismatch is logged and skipped rather than failing the row.
func (p *Pipeline) linkGeo(ctx context.Context, res *geocode.Result, addressID, country string) error {
	if res.Country != "" {
		country = res.Country
	}
	g, err := resilience.DoVal(ctx, p.opts.Retry, func(ctx context.Context) (*model.Geo, error) {
		return p.store.FindOrCreateGeo(ctx, res.Latitude, res.Longitude, country, p.now())
	})
	if err != nil {
		return eris.Wrap(err, "ingest: find or create geo")
	}
	err = p.retry(ctx, func(ctx context.Context) error {
		return p.store.RelateGeoAddress(ctx, g.ID, addressID)
	})
	switch {
	case err == nil:
		return nil
	case eris.Is(err, model.ErrCountryMismatch):
		zap.L().Warn("ingest: geo not linked", zap.String("geo_id", g.ID), zap.String("address_id", addressID), zap.Error(err))
		return nil
	default:
		return eris.Wrapf(err, "ingest: relate geo %s", g.ID)
	}
}

func (p *Pipeline) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return resilience.Do(ctx, p.opts.Retry, fn)
}

func topMatches(cands []match.Candidate, n int) []model.TempMatch {
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]model.TempMatch, len(cands))
	for i, c := range cands {
		out[i] = model.TempMatch{
			FactoryID:    c.FactoryID,
			AddressID:    c.AddressID,
			Name:         c.Name,
			Address:      c.Address,
			NameScore:    c.NameScore,
			AddressScore: c.AddressScore,
			Confidence:   c.Confidence,
		}
	}
	return out
}
