package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openmod-dev/esmtrack/record"
	"github.com/openmod-dev/esmtrack/resolve"
)

// Manual reads the manually curated tool list kept in this repository.
// Entries are validated against the repository catalog unless their URL is
// already known from the automatic sources, which keeps the number of
// lookup calls down.
type Manual struct {
	lookup    resolve.Lookup
	logger    *slog.Logger
	path      string
	knownURLs map[string]bool
}

// ManualOption configures a Manual source.
type ManualOption func(*Manual)

// WithManualLogger sets a custom logger.
func WithManualLogger(logger *slog.Logger) ManualOption {
	return func(s *Manual) { s.logger = logger }
}

// NewManual creates a source over the manual CSV list at path. knownURLs
// are normalized URLs already collected from the automatic sources.
func NewManual(path string, knownURLs []string, lookup resolve.Lookup, opts ...ManualOption) *Manual {
	s := &Manual{
		lookup:    lookup,
		logger:    slog.Default(),
		path:      path,
		knownURLs: make(map[string]bool, len(knownURLs)),
	}
	for _, u := range knownURLs {
		s.knownURLs[u] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (*Manual) Name() string { return "manual" }

// Tools reads the manual list and keeps entries that are already known or
// that resolve in the repository catalog. The tool name is the last URL
// path segment.
func (s *Manual) Tools(ctx context.Context) ([]record.Tool, error) {
	f, err := os.Open(s.path) //nolint:gosec // path is operator-supplied config
	if err != nil {
		return nil, fmt.Errorf("open manual list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse manual list: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	urlCol := -1
	for i, name := range rows[0] {
		if name == "source_url" {
			urlCol = i
		}
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("manual list: missing required column %q", "source_url")
	}

	var tools []record.Tool
	for _, row := range rows[1:] {
		if urlCol >= len(row) || row[urlCol] == "" {
			continue
		}
		url := record.NormalizeURL(row[urlCol])
		if !strings.HasPrefix(url, "http") {
			url = "https://" + url
		}
		if !s.knownURLs[url] && s.lookup.Lookup(ctx, url).Status != resolve.Found {
			s.logger.InfoContext(ctx, "skipping manual entry with no catalog match", "url", url)
			continue
		}
		name := url[strings.LastIndex(url, "/")+1:]
		tools = append(tools, record.Tool{URL: url, Name: record.NewSet(name)})
	}
	return tools, nil
}
