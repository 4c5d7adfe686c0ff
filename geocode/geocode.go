// Package geocode maps location free-text to country names, preferring
// cheap pattern matching over rate-limited geocoding, with a persistent
// cache so no location is ever looked up twice.
package geocode

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/biter777/countries"
)

// Geocoder resolves a location string to a display name, of which the last
// comma-separated component is taken as the country.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (displayName string, err error)
}

// Resolver combines the curated country map, the ISO country database, and
// a geocoding fallback behind the persistent cache.
type Resolver struct {
	cache          *Cache
	geocoder       Geocoder
	logger         *slog.Logger
	countryMapping map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver. countryMapping keys are lower-cased
// location strings from the curated config.
func NewResolver(cache *Cache, countryMapping map[string]string, geocoder Geocoder, opts ...Option) *Resolver {
	r := &Resolver{
		cache:          cache,
		geocoder:       geocoder,
		logger:         slog.Default(),
		countryMapping: countryMapping,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Country returns the cached country for a location. ok is false both for
// uncached locations and for cached explicit nulls.
func (r *Resolver) Country(location string) (country string, ok bool) {
	cached, found := r.cache.Lookup(location)
	if !found || cached == nil {
		return "", false
	}
	return *cached, true
}

// ResolveBatch resolves every distinct uncached location: first by pattern
// matching, then through the geocoder. Geocoder failures are swallowed
// per-item; anything still unresolved afterwards is cached as an explicit
// null so it is never re-queried.
func (r *Resolver) ResolveBatch(ctx context.Context, locations []string) {
	pending := map[string]bool{}
	for _, loc := range locations {
		if loc == "" {
			continue
		}
		if _, cached := r.cache.Lookup(loc); !cached {
			pending[loc] = true
		}
	}
	if len(pending) == 0 {
		return
	}

	for _, loc := range sortedKeys(pending) {
		if country, ok := r.ExtractCountry(loc); ok {
			r.cache.Set(loc, &country)
			delete(pending, loc)
		}
	}

	for _, loc := range sortedKeys(pending) {
		displayName, err := r.geocoder.Geocode(ctx, loc)
		if err != nil {
			r.logger.DebugContext(ctx, "geocoding failed", "location", loc, "error", err)
			continue
		}
		if displayName == "" {
			continue
		}
		parts := strings.Split(displayName, ",")
		country := strings.TrimSpace(parts[len(parts)-1])
		if country != "" {
			r.cache.Set(loc, &country)
			delete(pending, loc)
		}
	}

	// Never retry what both passes failed to resolve.
	for loc := range pending {
		r.cache.Set(loc, nil)
	}
}

// ExtractCountry resolves a location by pattern matching alone: the
// curated map, the substring after the last comma (for "City, Country"
// strings), then the ISO country database.
func (r *Resolver) ExtractCountry(location string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(location))
	if country, ok := r.countryMapping[lower]; ok {
		return country, true
	}

	if idx := strings.LastIndex(lower, ","); idx >= 0 {
		last := strings.TrimSpace(lower[idx+1:])
		if country, ok := r.countryMapping[last]; ok {
			return country, true
		}
	}

	if cc := countries.ByName(lower); cc != countries.Unknown {
		return cc.Info().Name, true
	}
	return "", false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
