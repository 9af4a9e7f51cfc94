package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/facility-registry/internal/model"
	"github.com/sells-group/facility-registry/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	AddressComponents []struct {
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
}

// Google geocodes free-text addresses with the Google Geocoding API,
// restricted to the row's country.
type Google struct {
	key        string
	baseURL    string
	httpClient *http.Client
}

// GoogleOption configures a Google provider.
type GoogleOption func(*Google)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) GoogleOption {
	return func(g *Google) { g.httpClient = hc }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) GoogleOption {
	return func(g *Google) { g.baseURL = u }
}

// NewGoogle creates a Google provider for the given API key.
func NewGoogle(key string, opts ...GoogleOption) *Google {
	g := &Google{
		key:        key,
		baseURL:    googleGeocodeURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Geocode implements Provider. ZERO_RESULTS is a miss, not an error.
func (g *Google) Geocode(ctx context.Context, row model.RawRow) (*Result, error) {
	if g.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	address := strings.TrimSpace(row.Address)
	if address == "" {
		return &Result{Source: "google"}, nil
	}

	params := url.Values{
		"address": {address},
		"key":     {g.key},
	}
	if country := strings.TrimSpace(row.Country); country != "" {
		params.Set("components", "country:"+strings.ToUpper(country))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(resilience.NewTransientError(err), "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: google returned status %d", resp.StatusCode)
		if transientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Source: "google"}, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(eris.Errorf("geocode: google status %s", googleResp.Status))
	default:
		return nil, eris.Errorf("geocode: google status %s", googleResp.Status)
	}
	if len(googleResp.Results) == 0 {
		return &Result{Source: "google"}, nil
	}

	result := googleResp.Results[0]
	country := row.Country
	for _, c := range result.AddressComponents {
		for _, t := range c.Types {
			if t == "country" {
				country = c.ShortName
			}
		}
	}
	return &Result{
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		Country:   country,
		Source:    "google",
		Matched:   true,
	}, nil
}

// transientStatus reports HTTP statuses worth retrying: throttling, request
// timeouts and server-side failures.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
