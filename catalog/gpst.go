package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/record"
)

const defaultGPSTListingURL = "https://api.github.com/repos/G-PST/opentools/contents/data/software"

// GPST reads the G-PST opentools catalog: a GitHub directory listing of
// per-tool files, each added manually by contributors. No data in it is
// inferred automatically, so its categories are the most trustworthy of
// the sources.
type GPST struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	listingURL string
}

// GPSTOption configures a GPST source.
type GPSTOption func(*GPST)

// WithGPSTHTTPCache sets the HTTP response cache.
func WithGPSTHTTPCache(cache httpcache.Cacher) GPSTOption {
	return func(s *GPST) { s.cache = cache }
}

// WithGPSTLogger sets a custom logger.
func WithGPSTLogger(logger *slog.Logger) GPSTOption {
	return func(s *GPST) { s.logger = logger }
}

// WithGPSTListingURL overrides the directory listing URL, for tests.
func WithGPSTListingURL(listingURL string) GPSTOption {
	return func(s *GPST) { s.listingURL = listingURL }
}

// NewGPST creates a G-PST opentools source.
func NewGPST(opts ...GPSTOption) *GPST {
	s := &GPST{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		listingURL: defaultGPSTListingURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (*GPST) Name() string { return "g-pst" }

// Tools lists the catalog directory, fetches each tool file, and keeps
// entries categorized as one of the tracked model types.
func (s *GPST) Tools(ctx context.Context) ([]record.Tool, error) {
	body, err := s.fetch(ctx, s.listingURL)
	if err != nil {
		return nil, fmt.Errorf("list opentools catalog: %w", err)
	}

	var listing []struct {
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("parse opentools listing: %w", err)
	}

	var tools []record.Tool
	for _, entry := range listing {
		if entry.DownloadURL == "" {
			continue
		}
		body, err := s.fetch(ctx, entry.DownloadURL)
		if err != nil {
			return nil, fmt.Errorf("fetch opentools entry: %w", err)
		}

		var tool struct {
			Name          string   `yaml:"name"`
			Description   string   `yaml:"description"`
			URLSourcecode string   `yaml:"url_sourcecode"`
			Categories    []string `yaml:"categories"`
		}
		if err := yaml.Unmarshal(body, &tool); err != nil {
			return nil, fmt.Errorf("parse opentools entry: %w", err)
		}

		var categories []string
		for _, cat := range tool.Categories {
			if isToolType(cat) {
				categories = append(categories, cat)
			}
		}
		if len(categories) == 0 {
			continue
		}
		tools = append(tools, record.Tool{
			URL:         tool.URLSourcecode,
			Description: tool.Description,
			Category:    strings.Join(categories, ","),
			Name:        record.NewSet(tool.Name),
		})
	}
	return tools, nil
}

func (s *GPST) fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	return httpcache.FetchURL(ctx, s.cache, s.httpClient, req, s.logger)
}
