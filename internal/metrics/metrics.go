// Package metrics exposes Prometheus instrumentation for matching, search
// and ingestion. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest row outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the registry collectors.
type Metrics struct {
	MatchLatency    prometheus.Histogram
	MatchCandidates prometheus.Histogram

	SearchLatency prometheus.Histogram
	SearchResults prometheus.Histogram

	IngestRows    *prometheus.CounterVec
	SweepLatency  prometheus.Histogram
	Reclaimed     prometheus.Counter
	SourcesMerged prometheus.Counter
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facility_match_duration_seconds",
			Help:    "Duration of candidate matching including the candidate fetch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		MatchCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facility_match_candidates",
			Help:    "Number of candidates scored per match",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facility_search_duration_seconds",
			Help:    "Duration of facility search including deduplication and recency filtering",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facility_search_results",
			Help:    "Number of canonical facilities returned per search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		IngestRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_ingest_rows_total",
			Help: "Uploaded rows handled by the ingestion pipeline by outcome",
		}, []string{"outcome"}), // outcome: "processed", "failed", "skipped"
		SweepLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facility_ingest_sweep_duration_seconds",
			Help:    "Duration of one ingestion sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Reclaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "facility_ingest_reclaimed_total",
			Help: "Rows reset from processing to unprocessed by the reclaim sweep",
		}),
		SourcesMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "facility_sources_merged_total",
			Help: "Duplicate sources folded into their oldest sibling",
		}),
	}
}

// ObserveMatch records one match call.
func (m *Metrics) ObserveMatch(candidates int, d time.Duration) {
	if m != nil {
		m.MatchLatency.Observe(d.Seconds())
		m.MatchCandidates.Observe(float64(candidates))
	}
}

// ObserveSearch records one search call.
func (m *Metrics) ObserveSearch(results int, d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
		m.SearchResults.Observe(float64(results))
	}
}

// AddRows counts n ingest rows with outcome.
func (m *Metrics) AddRows(outcome string, n int) {
	if m != nil && n > 0 {
		m.IngestRows.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveSweep records the duration of one sweep.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepLatency.Observe(d.Seconds())
	}
}

// AddReclaimed counts reclaimed rows.
func (m *Metrics) AddReclaimed(n int) {
	if m != nil && n > 0 {
		m.Reclaimed.Add(float64(n))
	}
}

// AddSourcesMerged counts merged duplicate sources.
func (m *Metrics) AddSourcesMerged(n int) {
	if m != nil && n > 0 {
		m.SourcesMerged.Add(float64(n))
	}
}
