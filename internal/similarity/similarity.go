// Package similarity scores how close two normalized text fields are on a
// 0-100 scale.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"github.com/xrash/smetrics"

	"github.com/sells-group/facility-registry/internal/normalize"
)

// MaxScore is the score of two identical normalized strings.
const MaxScore = 100.0

// Algorithm names accepted by New.
const (
	AlgorithmTokenSort   = "token_sort"
	AlgorithmJaroWinkler = "jaro_winkler"
)

// Scorer compares two text fields. Implementations must be symmetric, return
// MaxScore for equal inputs and 0 for disjoint ones.
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b string) float64

// Score implements Scorer.
func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// New returns the scorer registered under name. An empty name selects token_sort.
func New(name string) (Scorer, error) {
	switch name {
	case "", AlgorithmTokenSort:
		return TokenSort{}, nil
	case AlgorithmJaroWinkler:
		return JaroWinkler{}, nil
	default:
		return nil, eris.Errorf("similarity: unknown algorithm %q", name)
	}
}

// TokenSort is a token-sort ratio: both inputs are normalized, their tokens
// sorted and rejoined, and the Levenshtein distance is scaled against the
// longer string. Word order differences ("Mills ABC" vs "ABC Mills") cost nothing.
type TokenSort struct{}

// Score implements Scorer.
func (TokenSort) Score(a, b string) float64 {
	a, b = sortedTokens(a), sortedTokens(b)
	if a == b {
		return MaxScore
	}
	if a == "" || b == "" {
		return 0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	dist := levenshtein.ComputeDistance(a, b)
	return clamp(MaxScore * (1 - float64(dist)/float64(longest)))
}

// JaroWinkler scores normalized inputs with the Jaro-Winkler similarity,
// which favours shared prefixes. It suits short names better than addresses.
type JaroWinkler struct{}

// Score implements Scorer.
func (JaroWinkler) Score(a, b string) float64 {
	a, b = normalize.Address(a), normalize.Address(b)
	if a == b {
		return MaxScore
	}
	if a == "" || b == "" {
		return 0
	}
	// Jaro-Winkler's prefix bonus is computed from the first argument's
	// perspective; ordering the pair keeps the score symmetric.
	if b < a {
		a, b = b, a
	}
	return clamp(MaxScore * smetrics.JaroWinkler(a, b, 0.7, 4))
}

func sortedTokens(s string) string {
	fields := strings.Fields(normalize.Address(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
