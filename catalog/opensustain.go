package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/record"
)

const defaultOpenSustainURL = "https://docs.getgrist.com/api/docs/gSscJkc5Rb1Rw45gh1o1Yc/tables/Projects/data"

// OpenSustain reads the OpenSustain.tech project table, of which ESM tools
// are two sub-categories.
type OpenSustain struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	tableURL   string
}

// OpenSustainOption configures an OpenSustain source.
type OpenSustainOption func(*OpenSustain)

// WithOpenSustainHTTPCache sets the HTTP response cache.
func WithOpenSustainHTTPCache(cache httpcache.Cacher) OpenSustainOption {
	return func(s *OpenSustain) { s.cache = cache }
}

// WithOpenSustainLogger sets a custom logger.
func WithOpenSustainLogger(logger *slog.Logger) OpenSustainOption {
	return func(s *OpenSustain) { s.logger = logger }
}

// WithOpenSustainTableURL overrides the table endpoint, for tests.
func WithOpenSustainTableURL(tableURL string) OpenSustainOption {
	return func(s *OpenSustain) { s.tableURL = tableURL }
}

// NewOpenSustain creates an OpenSustain.tech source.
func NewOpenSustain(opts ...OpenSustainOption) *OpenSustain {
	s := &OpenSustain{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		tableURL:   defaultOpenSustainURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (*OpenSustain) Name() string { return "opensustain-tech" }

// esmSubCategories are the OpenSustain.tech sub-categories tracked here.
var esmSubCategories = map[string]bool{
	"Energy System Modeling Frameworks": true,
	"Grid Analysis and Planning":        true,
}

// Tools reads the columnar Grist table and keeps rows in the tracked
// sub-categories. Sub-category cells are pairs of the form
// ["L", "Grid Analysis and Planning"]; only the second element matters.
func (s *OpenSustain) Tools(ctx context.Context) ([]record.Tool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, s.cache, s.httpClient, req, s.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch opensustain table: %w", err)
	}

	var table struct {
		GitURL       []string   `json:"git_url"`
		Description  []string   `json:"description"`
		ProjectNames []string   `json:"project_names"`
		SubCategory  [][]string `json:"sub_category"`
	}
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("parse opensustain table: %w", err)
	}

	var tools []record.Tool
	for i, sub := range table.SubCategory {
		if len(sub) < 2 || !esmSubCategories[sub[1]] {
			continue
		}
		if i >= len(table.GitURL) {
			return nil, fmt.Errorf("opensustain table: ragged columns at row %d", i)
		}
		t := record.Tool{URL: table.GitURL[i]}
		if i < len(table.Description) {
			t.Description = table.Description[i]
		}
		if i < len(table.ProjectNames) {
			t.Name = record.NewSet(table.ProjectNames[i])
		}
		tools = append(tools, t)
	}
	return tools, nil
}
