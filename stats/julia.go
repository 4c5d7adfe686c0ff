package stats

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

const defaultJuliaStatsURL = "https://juliapkgstats.com/api/v1/monthly_downloads/"

// Julia fetches monthly download counts from the Julia package stats
// service. The repository catalog reports Julia downloads as null, so this
// is the only source for them.
type Julia struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	baseURL    string
}

// JuliaOption configures a Julia client.
type JuliaOption func(*Julia)

// WithJuliaHTTPCache sets the HTTP response cache.
func WithJuliaHTTPCache(cache httpcache.Cacher) JuliaOption {
	return func(c *Julia) { c.cache = cache }
}

// WithJuliaLogger sets a custom logger.
func WithJuliaLogger(logger *slog.Logger) JuliaOption {
	return func(c *Julia) { c.logger = logger }
}

// WithJuliaBaseURL overrides the stats endpoint, for tests.
func WithJuliaBaseURL(baseURL string) JuliaOption {
	return func(c *Julia) { c.baseURL = baseURL }
}

// NewJulia creates a Julia package stats client.
func NewJulia(opts ...JuliaOption) *Julia {
	c := &Julia{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		baseURL:    defaultJuliaStatsURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MonthlyDownloads implements DownloadCounter.
func (c *Julia) MonthlyDownloads(ctx context.Context, packageName string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url.PathEscape(packageName), http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		return 0, fmt.Errorf("julia stats for %s: %w", packageName, err)
	}
	var result struct {
		TotalRequests int64 `json:"total_requests"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parse julia stats for %s: %w", packageName, err)
	}
	return result.TotalRequests, nil
}
