// Package match scores existing Factory+Address pairs against a new facility
// and ranks them for human or automatic confirmation.
package match

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/normalize"
	"github.com/sells-group/facility-registry/internal/similarity"
)

// Defaults for Options. The weighting and threshold are inherited constants
// pending empirical re-tuning; both are configurable via match.* settings.
const (
	DefaultNameWeight          = 3.0
	DefaultAddressWeight       = 1.0
	DefaultConfidenceThreshold = 70.0
)

// Candidate is one scored Factory+Address pair.
type Candidate struct {
	FactoryID     string  `json:"factory_id"`
	AddressID     string  `json:"address_id"`
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	NameScore     float64 `json:"name_score"`
	AddressScore  float64 `json:"address_score"`
	CombinedScore float64 `json:"combined_score"`
	Confidence    bool    `json:"confidence"`
}

// Exact reports whether both fields matched at the maximum score.
func (c Candidate) Exact() bool {
	return c.NameScore >= similarity.MaxScore && c.AddressScore >= similarity.MaxScore
}

// Result holds ranked candidates, best first.
type Result struct {
	Matched []Candidate `json:"matched"`
}

// Query is a facility to match.
type Query struct {
	Country string
	Name    string
	Address string
}

// Validate returns a MissingField error for the first blank field.
func (q Query) Validate() error {
	switch {
	case strings.TrimSpace(q.Country) == "":
		return model.MissingField("country")
	case strings.TrimSpace(q.Name) == "":
		return model.MissingField("name")
	case strings.TrimSpace(q.Address) == "":
		return model.MissingField("address")
	}
	return nil
}

// Options tunes the combined score.
type Options struct {
	NameWeight          float64
	AddressWeight       float64
	ConfidenceThreshold float64
	// FilterByCountry restricts the candidate pool to the query's country.
	// It is an optimization only; scores never depend on country equality.
	FilterByCountry bool
}

// DefaultOptions returns the inherited weighting.
func DefaultOptions() Options {
	return Options{
		NameWeight:          DefaultNameWeight,
		AddressWeight:       DefaultAddressWeight,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		FilterByCountry:     true,
	}
}

// CandidateSource supplies the pool of existing Factory+Address pairs.
// An empty country means no filtering.
type CandidateSource interface {
	ListCandidates(ctx context.Context, country string) ([]model.FactoryAddress, error)
}

// Observer receives match timings. metrics.Metrics satisfies it.
type Observer interface {
	ObserveMatch(candidates int, d time.Duration)
}

// Matcher ranks candidates for a query.
type Matcher struct {
	source   CandidateSource
	scorer   similarity.Scorer
	opts     Options
	observer Observer
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithObserver records match timings.
func WithObserver(o Observer) Option {
	return func(m *Matcher) {
		m.observer = o
	}
}

// New creates a Matcher. A nil scorer selects token-sort ratio.
func New(source CandidateSource, scorer similarity.Scorer, opts Options, options ...Option) *Matcher {
	if scorer == nil {
		scorer = similarity.TokenSort{}
	}
	m := &Matcher{source: source, scorer: scorer, opts: opts}
	for _, o := range options {
		o(m)
	}
	return m
}

// Match validates q, fetches the candidate pool once and ranks it.
func (m *Matcher) Match(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	country := ""
	if m.opts.FilterByCountry {
		country = strings.TrimSpace(q.Country)
	}
	pool, err := m.source.ListCandidates(ctx, country)
	if err != nil {
		return nil, eris.Wrap(err, "match: list candidates")
	}

	ranked := Rank(q, pool, m.scorer, m.opts)
	if m.observer != nil {
		m.observer.ObserveMatch(len(ranked), time.Since(start))
	}

	zap.L().Debug("match: ranked candidates",
		zap.String("country", q.Country),
		zap.String("name", q.Name),
		zap.Int("pool", len(pool)),
	)
	return &Result{Matched: ranked}, nil
}

// Rank scores every pair in pool against q and sorts them by combined score,
// descending. Ties keep pool order. Rank does not modify pool. Names are
// compared without corporate suffixes so "ABC Mills Ltd" equals "ABC Mills".
func Rank(q Query, pool []model.FactoryAddress, scorer similarity.Scorer, opts Options) []Candidate {
	queryName := normalize.Name(q.Name)
	out := make([]Candidate, 0, len(pool))
	for _, fa := range pool {
		c := Candidate{
			FactoryID:    fa.FactoryID,
			AddressID:    fa.AddressID,
			Name:         fa.Name,
			Address:      fa.Address,
			NameScore:    scorer.Score(normalize.Name(fa.Name), queryName),
			AddressScore: scorer.Score(fa.Address, q.Address),
		}
		Apply(&c, opts)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	return out
}

// Apply sets the combined score and confidence verdict from the field scores.
func Apply(c *Candidate, opts Options) {
	c.CombinedScore = c.NameScore*opts.NameWeight + c.AddressScore*opts.AddressWeight
	c.Confidence = c.CombinedScore > opts.ConfidenceThreshold
}
