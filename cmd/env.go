package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/facility-registry/internal/config"
	"github.com/sells-group/facility-registry/internal/dedupe"
	"github.com/sells-group/facility-registry/internal/facility"
	"github.com/sells-group/facility-registry/internal/geocode"
	"github.com/sells-group/facility-registry/internal/ingest"
	"github.com/sells-group/facility-registry/internal/match"
	"github.com/sells-group/facility-registry/internal/metrics"
	"github.com/sells-group/facility-registry/internal/recency"
	"github.com/sells-group/facility-registry/internal/resilience"
	"github.com/sells-group/facility-registry/internal/similarity"
	"github.com/sells-group/facility-registry/internal/store"
)

// appEnv wires the engine for one command invocation.
type appEnv struct {
	Store    store.Store
	Engine   *facility.Engine
	Pipeline *ingest.Pipeline
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Close releases the store.
func (e *appEnv) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case config.DriverMemory, "":
		return store.NewMemory(), nil
	case config.DriverPostgres:
		pg, err := store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
			MaxConns: c.MaxConns,
			MinConns: c.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	env, err := buildEnv(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildEnv assembles the matcher, pipeline and engine over st.
func buildEnv(c *config.Config, st store.Store) (*appEnv, error) {
	scorer, err := similarity.New(c.Match.Algorithm)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	matcher := match.New(st, scorer, match.Options{
		NameWeight:          c.Match.NameWeight,
		AddressWeight:       c.Match.AddressWeight,
		ConfidenceThreshold: c.Match.ConfidenceThreshold,
		FilterByCountry:     c.Match.FilterByCountry,
	}, match.WithObserver(m))

	// Uploader-supplied coordinates win; the remote API only fills gaps.
	var geocoder geocode.Provider = geocode.RowProvider{}
	if c.Ingest.GoogleAPIKey != "" {
		geocoder = geocode.NewCascade(geocoder, geocode.NewRateLimited(geocode.NewGoogle(c.Ingest.GoogleAPIKey), c.Ingest.GeocodeRPS))
	}

	pipeline := ingest.New(st, matcher, geocoder, ingest.Options{
		PageSize:          c.Ingest.PageSize,
		ProcessingTimeout: c.Ingest.ProcessingTimeout,
		MaxCandidates:     c.Ingest.MaxCandidates,
		Concurrency:       c.Ingest.Concurrency,
		Retry:             resilience.FromAttempts(c.Ingest.RetryAttempts, c.Ingest.RetryBackoff),
	}, ingest.WithMetrics(m))

	engine := facility.New(st, matcher, pipeline, facility.Options{
		Dedupe:  dedupe.Options{GridDecimals: c.Dedupe.GridDecimals},
		Recency: recency.Options{SeedUploaderIDs: c.Recency.SeedUploaderIDs},
	}, facility.WithMetrics(m))

	return &appEnv{
		Store:    st,
		Engine:   engine,
		Pipeline: pipeline,
		Metrics:  m,
		Registry: reg,
	}, nil
}
