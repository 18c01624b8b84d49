package geo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatform/chatform/internal/errors"
)

func fakeGeocodingAPI(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("address") {
		case "Chiang Mai":
			io.WriteString(w, `{"status":"OK","results":[{"formatted_address":"Chiang Mai, Thailand","geometry":{"location":{"lat":18.7883,"lng":98.9853}}}]}`)
		case "denied":
			io.WriteString(w, `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid.","results":[]}`)
		default:
			io.WriteString(w, `{"status":"ZERO_RESULTS","results":[]}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleGeocoder_Geocode(t *testing.T) {
	var hits int32
	srv := fakeGeocodingAPI(t, &hits)
	g, err := NewGoogleGeocoder(GoogleConfig{APIKey: "test-key", URL: srv.URL})
	require.NoError(t, err)

	pt, err := g.Geocode(context.Background(), "Chiang Mai")
	require.NoError(t, err)
	assert.InDelta(t, 18.7883, pt.Lat, 1e-6)
	assert.InDelta(t, 98.9853, pt.Lng, 1e-6)

	_, err = g.Geocode(context.Background(), "  chiang mai ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second lookup should be memoized")
}

func TestGoogleGeocoder_Failures(t *testing.T) {
	var hits int32
	srv := fakeGeocodingAPI(t, &hits)
	g, err := NewGoogleGeocoder(GoogleConfig{APIKey: "test-key", URL: srv.URL, RateLimit: 100})
	require.NoError(t, err)

	_, err = g.Geocode(context.Background(), "Atlantis")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = g.Geocode(context.Background(), "denied")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "REQUEST_DENIED")

	_, err = g.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewGoogleGeocoder_RequiresKey(t *testing.T) {
	_, err := NewGoogleGeocoder(GoogleConfig{})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestDistanceKm(t *testing.T) {
	chiangMai := Point{Lat: 18.7883, Lng: 98.9853}
	bangkok := Point{Lat: 13.7563, Lng: 100.5018}
	london := Point{Lat: 51.5074, Lng: -0.1278}
	paris := Point{Lat: 48.8566, Lng: 2.3522}

	assert.InDelta(t, 0, DistanceKm(bangkok, bangkok), 1e-9)
	assert.InDelta(t, 582, DistanceKm(chiangMai, bangkok), 5)
	assert.InDelta(t, 343.5, DistanceKm(london, paris), 2)
	assert.InDelta(t, DistanceKm(london, paris), DistanceKm(paris, london), 1e-9)
}
