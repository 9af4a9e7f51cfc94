// Package facility exposes the registry's three external operations:
// matching a facility, searching canonical facilities, and running an
// ingestion sweep.
package facility

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/dedupe"
	"github.com/sells-group/facility-registry/internal/ingest"
	"github.com/sells-group/facility-registry/internal/match"
	"github.com/sells-group/facility-registry/internal/metrics"
	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/recency"
	"github.com/sells-group/facility-registry/internal/store"
)

// SearchQuery narrows SearchFacilities. Empty fields match everything.
type SearchQuery struct {
	Name           string   `json:"name,omitempty"`
	Country        string   `json:"country,omitempty"`
	ContributorIDs []string `json:"contributor_ids,omitempty"`
}

// Options configures the search stages.
type Options struct {
	Dedupe  dedupe.Options
	Recency recency.Options
}

// DefaultOptions returns one-decimal clustering and no seed accounts.
func DefaultOptions() Options {
	return Options{Dedupe: dedupe.DefaultOptions()}
}

// Engine composes the matcher, the search stages and the ingestion pipeline
// over one Store.
type Engine struct {
	store    store.Store
	matcher  *match.Matcher
	pipeline *ingest.Pipeline
	opts     Options
	recency  *recency.Filter
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records search metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(st store.Store, matcher *match.Matcher, pipeline *ingest.Pipeline, opts Options, options ...Option) *Engine {
	e := &Engine{
		store:    st,
		matcher:  matcher,
		pipeline: pipeline,
		opts:     opts,
		recency:  recency.New(opts.Recency),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Pipeline returns the ingestion pipeline for the maintenance operations.
func (e *Engine) Pipeline() *ingest.Pipeline { return e.pipeline }

// MatchFacility ranks existing facilities against (country, name, address).
// A blank field fails with a MissingField error.
func (e *Engine) MatchFacility(ctx context.Context, country, name, address string) (*match.Result, error) {
	res, err := e.matcher.Match(ctx, match.Query{Country: country, Name: name, Address: address})
	if err != nil {
		return nil, eris.Wrap(err, "facility: match")
	}
	return res, nil
}

// SearchFacilities returns canonical facilities: reports are deduplicated,
// stale provenance is suppressed, then the optional contributor filter is
// applied. No matching rows yields an empty slice.
func (e *Engine) SearchFacilities(ctx context.Context, q SearchQuery) ([]model.CanonicalFacility, error) {
	start := time.Now()

	reports, err := e.store.ListReports(ctx, store.ReportQuery{NamePattern: q.Name, Country: q.Country})
	if err != nil {
		return nil, eris.Wrap(err, "facility: list reports")
	}

	canonical := dedupe.Deduplicate(reports, e.opts.Dedupe)
	canonical = e.recency.Apply(canonical)
	canonical = recency.FilterContributors(canonical, q.ContributorIDs)

	e.metrics.ObserveSearch(len(canonical), time.Since(start))
	zap.L().Debug("facility: search",
		zap.String("name", q.Name),
		zap.String("country", q.Country),
		zap.Int("reports", len(reports)),
		zap.Int("results", len(canonical)),
	)
	return canonical, nil
}

// IngestBatch runs one ingestion sweep of at most maxRows rows (a page when
// maxRows is not positive) and returns the number processed.
func (e *Engine) IngestBatch(ctx context.Context, maxRows int) (int, error) {
	n, err := e.pipeline.Sweep(ctx, maxRows)
	if err != nil {
		return n, eris.Wrap(err, "facility: ingest batch")
	}
	return n, nil
}
