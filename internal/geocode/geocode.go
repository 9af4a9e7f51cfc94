// Package geocode resolves uploaded rows to coordinates.
package geocode

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/facility-registry/internal/model"
)

// Result is a geocoded point. Matched=false means the provider had no answer.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Source    string  `json:"source"`
	Matched   bool    `json:"matched"`
}

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, row model.RawRow) (*Result, error)
}

// Column names read by RowProvider.
var (
	latColumns = []string{"lat", "latitude"}
	lngColumns = []string{"lng", "lon", "long", "longitude"}
)

// RowProvider reads coordinates the uploader supplied as extra columns.
type RowProvider struct{}

// Name implements Provider.
func (RowProvider) Name() string { return "row" }

// Geocode implements Provider. Missing, unparsable or out-of-range values
// are a miss, not an error.
func (RowProvider) Geocode(_ context.Context, row model.RawRow) (*Result, error) {
	lat, okLat := column(row.Extra, latColumns)
	lng, okLng := column(row.Extra, lngColumns)
	if !okLat || !okLng || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return &Result{Source: "row"}, nil
	}
	return &Result{
		Latitude:  lat,
		Longitude: lng,
		Country:   row.Country,
		Source:    "row",
		Matched:   true,
	}, nil
}

func column(extra map[string]string, names []string) (float64, bool) {
	for k, v := range extra {
		key := strings.ToLower(strings.TrimSpace(k))
		for _, n := range names {
			if key != n {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return 0, false
			}
			return f, true
		}
	}
	return 0, false
}

// Cascade tries providers in order until one matches.
type Cascade struct {
	providers []Provider
}

// NewCascade creates a Cascade over providers.
func NewCascade(providers ...Provider) *Cascade {
	return &Cascade{providers: providers}
}

// Name implements Provider.
func (c *Cascade) Name() string { return "cascade" }

// Geocode implements Provider. A provider error is logged and the next
// provider is tried; the last error is returned only if nothing matched.
func (c *Cascade) Geocode(ctx context.Context, row model.RawRow) (*Result, error) {
	var lastErr error
	for _, p := range c.providers {
		res, err := p.Geocode(ctx, row)
		if err != nil {
			zap.L().Debug("geocode: provider failed", zap.String("provider", p.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		if res != nil && res.Matched {
			if res.Country == "" {
				res.Country = row.Country
			}
			return res, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "geocode: cascade")
	}
	return &Result{Source: "cascade"}, nil
}

// RateLimited throttles calls to the wrapped provider.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with a burst of the same size.
// A non-positive rps disables limiting.
func NewRateLimited(next Provider, rps float64) *RateLimited {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(math.Max(1, rps))
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Name implements Provider.
func (r *RateLimited) Name() string { return r.next.Name() }

// Geocode implements Provider.
func (r *RateLimited) Geocode(ctx context.Context, row model.RawRow) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}
	return r.next.Geocode(ctx, row)
}
