package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) *GeocodeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := NewBaseClient(srv.Client(), "geocode-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"ZoneAtlas/1.0", WithSleepFunc(noSleep))

	return NewGeocodeClientWithBase(base, GeocodeClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
}

func TestGeocodeClient_ReverseGeocode(t *testing.T) {
	client := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"123 Main St, Wilmington, DE 19801"}]}`))
	})

	addr, err := client.ReverseGeocode(context.Background(), 39.7447, -75.5484)
	require.NoError(t, err)
	assert.Equal(t, "123 Main St, Wilmington, DE 19801", addr)
}

func TestGeocodeClient_ZeroResultsIsEmptyNotError(t *testing.T) {
	client := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})

	addr, err := client.ReverseGeocode(context.Background(), 36.0, -70.0)
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestGeocodeClient_DeniedStatusIsError(t *testing.T) {
	client := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","results":[]}`))
	})

	_, err := client.ReverseGeocode(context.Background(), 39.7, -75.5)
	require.Error(t, err)
}
