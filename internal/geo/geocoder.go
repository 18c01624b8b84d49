// Package geo geocodes addresses and measures the distance between them.
package geo

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/chatform/chatform/internal/errors"
)

// Point is a WGS84 coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves an address to a coordinate
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Point, error)
}

// ErrNotFound is returned when the provider has no match for an address
var ErrNotFound = stderrors.New("address not found")

// GoogleConfig configures the Google Geocoding client
type GoogleConfig struct {
	APIKey    string
	URL       string
	RateLimit float64 // requests per second, 0 disables
	Timeout   time.Duration
}

// GoogleGeocoder calls the Google Geocoding API. Results are memoized
// in process.
type GoogleGeocoder struct {
	apiKey  string
	url     string
	client  *http.Client
	limiter *rate.Limiter
	memo    *gocache.Cache
	logger  *slog.Logger
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location Point `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NewGoogleGeocoder creates a geocoder
func NewGoogleGeocoder(cfg GoogleConfig) (*GoogleGeocoder, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigError("GOOGLE_MAPS_API_KEY is not set")
	}
	if cfg.URL == "" {
		cfg.URL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	g := &GoogleGeocoder{
		apiKey: cfg.APIKey,
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		memo:   gocache.New(24*time.Hour, time.Hour),
		logger: slog.Default().With("component", "geocoder"),
	}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return g, nil
}

// Geocode returns the first match for address
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (*Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.ValidationError("address is empty")
	}
	key := strings.ToLower(address)
	if p, ok := g.memo.Get(key); ok {
		pt := p.(Point)
		return &pt, nil
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.NetworkError(err, "geocoding rate limiter")
		}
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.InternalErrorf("build geocoding request: %v", err)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.NetworkError(err, "geocoding request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrorTypeExternal, errors.SeverityMedium,
			fmt.Sprintf("geocoding returned HTTP %d", resp.StatusCode))
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.ExternalError(err, "decode geocoding response")
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNotFound
	default:
		return nil, errors.New(errors.ErrorTypeExternal, errors.SeverityMedium,
			fmt.Sprintf("geocoding status %s: %s", body.Status, body.ErrorMessage))
	}
	if len(body.Results) == 0 {
		return nil, ErrNotFound
	}

	pt := body.Results[0].Geometry.Location
	g.memo.SetDefault(key, pt)
	g.logger.Debug("address geocoded",
		"formatted", body.Results[0].FormattedAddress,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &pt, nil
}

const earthRadiusKm = 6371.0088

// DistanceKm is the great-circle distance between a and b
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
