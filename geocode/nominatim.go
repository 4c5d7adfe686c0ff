package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/openmod-dev/esmtrack/httpcache"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// Nominatim geocodes locations through the OpenStreetMap Nominatim API.
// The shared rate limiter pins requests to one per second, which is
// Nominatim's absolute maximum.
type Nominatim struct {
	client *http.Client
	cache  httpcache.Cacher
	logger *slog.Logger
}

// NominatimOption configures a Nominatim client.
type NominatimOption func(*Nominatim)

// WithHTTPCache sets the HTTP response cache.
func WithHTTPCache(cache httpcache.Cacher) NominatimOption {
	return func(n *Nominatim) { n.cache = cache }
}

// WithNominatimLogger sets a custom logger.
func WithNominatimLogger(logger *slog.Logger) NominatimOption {
	return func(n *Nominatim) { n.logger = logger }
}

// NewNominatim creates a Nominatim client.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Geocode resolves a location to its display name. An empty display name
// with a nil error means the location produced no results.
func (n *Nominatim) Geocode(ctx context.Context, location string) (string, error) {
	query := url.Values{
		"q":               {location},
		"format":          {"json"},
		"limit":           {"1"},
		"accept-language": {"en"},
	}
	reqURL := nominatimSearchURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, n.cache, n.client, req, n.logger)
	if err != nil {
		return "", fmt.Errorf("geocode %q: %w", location, err)
	}

	var results []struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].DisplayName, nil
}
