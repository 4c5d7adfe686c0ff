package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/record"
)

const defaultLandscapeURL = "https://raw.githubusercontent.com/lf-energy/lfenergy-landscape/refs/heads/main/landscape.yml"

// LFEnergy reads the LF Energy landscape feed. The landscape periodically
// imports OpenSustain.tech data and adds its own projects, so its entries
// overlap heavily with the other sources; deduplication handles that.
type LFEnergy struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	feedURL    string
}

// LFEnergyOption configures an LFEnergy source.
type LFEnergyOption func(*LFEnergy)

// WithLFEnergyHTTPCache sets the HTTP response cache.
func WithLFEnergyHTTPCache(cache httpcache.Cacher) LFEnergyOption {
	return func(s *LFEnergy) { s.cache = cache }
}

// WithLFEnergyLogger sets a custom logger.
func WithLFEnergyLogger(logger *slog.Logger) LFEnergyOption {
	return func(s *LFEnergy) { s.logger = logger }
}

// WithLFEnergyFeedURL overrides the landscape feed URL, for tests.
func WithLFEnergyFeedURL(feedURL string) LFEnergyOption {
	return func(s *LFEnergy) { s.feedURL = feedURL }
}

// NewLFEnergy creates an LF Energy landscape source.
func NewLFEnergy(opts ...LFEnergyOption) *LFEnergy {
	s := &LFEnergy{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		feedURL:    defaultLandscapeURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (*LFEnergy) Name() string { return "lf-energy-landscape" }

// Tools returns the "Energy Systems" / "Modeling and Optimization" subtree
// of the landscape.
func (s *LFEnergy) Tools(ctx context.Context) ([]record.Tool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, s.cache, s.httpClient, req, s.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch landscape: %w", err)
	}

	var feed struct {
		Landscape []struct {
			Name          string `yaml:"name"`
			Subcategories []struct {
				Name  string `yaml:"name"`
				Items []struct {
					Name        string `yaml:"name"`
					Description string `yaml:"description"`
					RepoURL     string `yaml:"repo_url"`
					HomepageURL string `yaml:"homepage_url"`
				} `yaml:"items"`
			} `yaml:"subcategories"`
		} `yaml:"landscape"`
	}
	if err := yaml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse landscape: %w", err)
	}

	var tools []record.Tool
	for _, category := range feed.Landscape {
		if category.Name != "Energy Systems" {
			continue
		}
		for _, sub := range category.Subcategories {
			if sub.Name != "Modeling and Optimization" {
				continue
			}
			for _, item := range sub.Items {
				url := item.RepoURL
				if url == "" {
					url = item.HomepageURL
				}
				tools = append(tools, record.Tool{
					URL:         url,
					Description: item.Description,
					Name:        record.NewSet(item.Name),
				})
			}
		}
	}
	return tools, nil
}
