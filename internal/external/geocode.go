package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"zoneatlas/internal/types"
)

// geocodeAPIBase is the default Google Maps Geocoding API base URL.
const geocodeAPIBase = "https://maps.googleapis.com"

// GeocodeClientConfig holds the configuration for creating a GeocodeClient.
type GeocodeClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to geocodeAPIBase
	Logger  types.Logger
}

// GeocodeClient resolves coordinates to street addresses via the Google
// Maps Geocoding API. It is optional infrastructure: when no API key is
// configured the caller skips address resolution entirely, so failures
// here must never abort a lookup.
type GeocodeClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  types.Logger
}

// NewGeocodeClient creates a new GeocodeClient.
func NewGeocodeClient(httpClient *http.Client, cfg GeocodeClientConfig) *GeocodeClient {
	base := NewBaseClient(
		httpClient,
		"google-geocode",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    250 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
		"ZoneAtlas/1.0",
	)
	return NewGeocodeClientWithBase(base, cfg)
}

// NewGeocodeClientWithBase creates a GeocodeClient with a pre-configured
// BaseClient for testing.
func NewGeocodeClientWithBase(base *BaseClient, cfg GeocodeClientConfig) *GeocodeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geocodeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &GeocodeClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		logger:  logger,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// ReverseGeocode returns the formatted street address at a coordinate,
// or "" when the API has no result for the point.
func (g *GeocodeClient) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lon))
	params.Set("key", g.apiKey)

	reqURL := g.baseURL + "/maps/api/geocode/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create geocode request",
			err,
		)
	}

	resp, err := g.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("geocoder returned status %d", resp.StatusCode),
			nil,
		)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeocoder,
			"failed to decode geocode response",
			err,
		)
	}

	switch decoded.Status {
	case "OK":
		if len(decoded.Results) == 0 {
			return "", nil
		}
		return decoded.Results[0].FormattedAddress, nil
	case "ZERO_RESULTS":
		return "", nil
	default:
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("geocoder returned status %q", decoded.Status),
			nil,
		)
	}
}
