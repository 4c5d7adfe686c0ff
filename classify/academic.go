package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/openmod-dev/esmtrack/httpcache"
)

// AcademicDomainsURL is the university domain database the classifier
// checks email and blog domains against.
const AcademicDomainsURL = "https://raw.githubusercontent.com/Hipo/university-domains-list/refs/heads/master/world_universities_and_domains.json"

// AcademicDomain is one university entry of the academic domain database,
// matched by domain suffix.
type AcademicDomain struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Domains []string `json:"domains"`
}

// FetchAcademicDomains downloads the academic domain database, using the
// shared response cache when available.
func FetchAcademicDomains(ctx context.Context, cache httpcache.Cacher, client *http.Client, logger *slog.Logger) ([]AcademicDomain, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, AcademicDomainsURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, cache, client, req, logger)
	if err != nil {
		return nil, fmt.Errorf("fetch academic domain database: %w", err)
	}
	return ParseAcademicDomains(body)
}

// ParseAcademicDomains decodes the academic domain database from JSON.
func ParseAcademicDomains(data []byte) ([]AcademicDomain, error) {
	var entries []AcademicDomain
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse academic domain database: %w", err)
	}
	return entries, nil
}

// ReadAcademicDomains decodes the academic domain database from a local
// copy, for offline runs.
func ReadAcademicDomains(r io.Reader) ([]AcademicDomain, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseAcademicDomains(data)
}
