// Package ecosystems is a client for the ecosyste.ms repository and
// package catalogs, the external lookup behind duplicate resolution and
// stats collection.
package ecosystems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/resolve"
)

const (
	defaultRepoAPI     = "https://repos.ecosyste.ms/api/v1/repositories/lookup?url="
	defaultPackagesAPI = "https://packages.ecosyste.ms/api/v1/packages/lookup?repository_url="
)

// Client queries ecosyste.ms.
type Client struct {
	httpClient  *http.Client
	cache       httpcache.Cacher
	logger      *slog.Logger
	repoAPI     string
	packagesAPI string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPCache sets the HTTP response cache.
func WithHTTPCache(cache httpcache.Cacher) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBaseURLs overrides the API endpoints, for tests.
func WithBaseURLs(repoAPI, packagesAPI string) Option {
	return func(c *Client) {
		c.repoAPI = repoAPI
		c.packagesAPI = packagesAPI
	}
}

// New creates an ecosyste.ms client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
		repoAPI:     defaultRepoAPI,
		packagesAPI: defaultPackagesAPI,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookupResponse is the subset of the repository lookup payload the
// pipeline uses.
type lookupResponse struct {
	RepositoryURL string `json:"repository_url"`
	HTMLURL       string `json:"html_url"`
	SourceOwner   string `json:"source_owner"`
	Fork          bool   `json:"fork"`
}

// Lookup resolves a repository URL to its catalog entry. Client errors
// (404 and friends) are definitive not-found results; server errors and
// network failures are transient.
func (c *Client) Lookup(ctx context.Context, repoURL string) resolve.Result {
	body, err := c.fetch(ctx, c.repoAPI+url.QueryEscape(repoURL))
	if err != nil {
		return lookupFailure(err)
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.WarnContext(ctx, "malformed lookup response", "url", repoURL, "error", err)
		return resolve.Result{Status: resolve.Unavailable}
	}
	return resolve.Result{
		Status:            resolve.Found,
		CanonicalURL:      resp.HTMLURL,
		Fork:              resp.Fork,
		ForkUpstreamOwner: resp.SourceOwner,
	}
}

func lookupFailure(err error) resolve.Result {
	var httpErr *httpcache.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return resolve.Result{Status: resolve.NotFound}
	}
	return resolve.Result{Status: resolve.Unavailable}
}

// RepoMetadata is the per-repository stats subset the inventory keeps.
type RepoMetadata struct {
	Owner           string  `json:"owner"`
	Language        string  `json:"language"`
	License         string  `json:"license"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	Stars           int     `json:"stargazers_count"`
	Forks           int     `json:"forks_count"`
	Archived        bool    `json:"archived"`
	DDS             float64 `json:"-"`
	TotalCommitters int     `json:"-"`
}

// Metadata fetches the full catalog entry for a repository: a lookup call
// to find the catalog's own repository URL, then a fetch of that entry.
func (c *Client) Metadata(ctx context.Context, repoURL string) (*RepoMetadata, error) {
	body, err := c.fetch(ctx, c.repoAPI+url.QueryEscape(repoURL))
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", repoURL, err)
	}
	var looked lookupResponse
	if err := json.Unmarshal(body, &looked); err != nil {
		return nil, fmt.Errorf("lookup %s: %w", repoURL, err)
	}
	if looked.RepositoryURL == "" {
		return nil, fmt.Errorf("lookup %s: no repository URL in catalog entry", repoURL)
	}

	body, err = c.fetch(ctx, looked.RepositoryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog entry for %s: %w", repoURL, err)
	}

	var full struct {
		RepoMetadata
		CommitStats struct {
			DDS             float64 `json:"dds"`
			TotalCommitters int     `json:"total_committers"`
		} `json:"commit_stats"`
	}
	if err := json.Unmarshal(body, &full); err != nil {
		return nil, fmt.Errorf("parse catalog entry for %s: %w", repoURL, err)
	}
	meta := full.RepoMetadata
	meta.DDS = full.CommitStats.DDS
	meta.TotalCommitters = full.CommitStats.TotalCommitters
	return &meta, nil
}

// PackageSource is one package registry entry associated with a
// repository. Downloads and DependentReposCount are nullable in the
// catalog; nil means the registry reports no figure at all, which is
// distinct from zero.
type PackageSource struct {
	Ecosystem                string `json:"ecosystem"`
	Name                     string `json:"name"`
	DownloadsPeriod          string `json:"downloads_period"`
	LatestReleasePublishedAt string `json:"latest_release_published_at"`
	Downloads                *int64 `json:"downloads"`
	DependentReposCount      *int64 `json:"dependent_repos_count"`
}

// Packages lists the package registry entries for a repository URL. A
// repository with no packages returns an empty list, not an error.
func (c *Client) Packages(ctx context.Context, repoURL string) ([]PackageSource, error) {
	body, err := c.fetch(ctx, c.packagesAPI+url.QueryEscape(repoURL))
	if err != nil {
		return nil, fmt.Errorf("package lookup %s: %w", repoURL, err)
	}
	var sources []PackageSource
	if err := json.Unmarshal(body, &sources); err != nil {
		return nil, fmt.Errorf("package lookup %s: %w", repoURL, err)
	}
	return sources, nil
}

func (c *Client) fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)
	return httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
}
