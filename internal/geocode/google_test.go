package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/resilience"
)

func newGoogleServer(t *testing.T, status int, body string) (*Google, *url.Values) {
	t.Helper()
	var seen url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewGoogle("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), &seen
}

func TestGoogle_Match(t *testing.T) {
	g, seen := newGoogleServer(t, http.StatusOK, `{
		"status": "OK",
		"results": [{
			"geometry": {"location": {"lat": 23.8103, "lng": 90.4125}},
			"address_components": [
				{"short_name": "Dhaka", "types": ["locality"]},
				{"short_name": "BD", "types": ["country", "political"]}
			]
		}]
	}`)

	res, err := g.Geocode(context.Background(), model.RawRow{Name: "ABC Mills", Address: "12 Main Road, Dhaka", Country: "bd"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.InDelta(t, 23.8103, res.Latitude, 0.0001)
	assert.InDelta(t, 90.4125, res.Longitude, 0.0001)
	assert.Equal(t, "BD", res.Country)
	assert.Equal(t, "google", res.Source)

	q := *seen
	assert.Equal(t, "12 Main Road, Dhaka", q.Get("address"))
	assert.Equal(t, "country:BD", q.Get("components"))
	assert.Equal(t, "test-key", q.Get("key"))
}

func TestGoogle_ZeroResults(t *testing.T) {
	g, _ := newGoogleServer(t, http.StatusOK, `{"status": "ZERO_RESULTS", "results": []}`)

	res, err := g.Geocode(context.Background(), model.RawRow{Address: "nowhere", Country: "BD"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestGoogle_Errors(t *testing.T) {
	g, _ := newGoogleServer(t, http.StatusOK, `{"status": "REQUEST_DENIED"}`)
	_, err := g.Geocode(context.Background(), model.RawRow{Address: "x", Country: "BD"})
	assert.ErrorContains(t, err, "REQUEST_DENIED")

	g, _ = newGoogleServer(t, http.StatusInternalServerError, `oops`)
	_, err = g.Geocode(context.Background(), model.RawRow{Address: "x", Country: "BD"})
	assert.ErrorContains(t, err, "status 500")

	g, _ = newGoogleServer(t, http.StatusOK, `{not json`)
	_, err = g.Geocode(context.Background(), model.RawRow{Address: "x", Country: "BD"})
	assert.ErrorContains(t, err, "parse response")

	_, err = NewGoogle("").Geocode(context.Background(), model.RawRow{Address: "x"})
	assert.ErrorContains(t, err, "api key not configured")
}

func TestGoogle_BlankAddressIsMiss(t *testing.T) {
	g, _ := newGoogleServer(t, http.StatusOK, `{}`)
	res, err := g.Geocode(context.Background(), model.RawRow{Country: "BD"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, "google", g.Name())
}

func TestGoogle_TransientFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"server error", http.StatusBadGateway, `oops`, true},
		{"throttled", http.StatusTooManyRequests, ``, true},
		{"over query limit", http.StatusOK, `{"status": "OVER_QUERY_LIMIT"}`, true},
		{"unknown error", http.StatusOK, `{"status": "UNKNOWN_ERROR"}`, true},
		{"forbidden", http.StatusForbidden, ``, false},
		{"request denied", http.StatusOK, `{"status": "REQUEST_DENIED"}`, false},
		{"invalid request", http.StatusOK, `{"status": "INVALID_REQUEST"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGoogleServer(t, tt.status, tt.body)
			_, err := g.Geocode(context.Background(), model.RawRow{Address: "x", Country: "BD"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestCascade_KeepsTransientClassification(t *testing.T) {
	g, _ := newGoogleServer(t, http.StatusServiceUnavailable, ``)
	_, err := NewCascade(RowProvider{}, NewRateLimited(g, 0)).Geocode(context.Background(), model.RawRow{Address: "x", Country: "BD"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
