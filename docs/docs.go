// Package docs probes the likely documentation locations for a tool:
// ReadTheDocs, GitHub/GitLab Pages, and repository wikis. The probes are
// best-effort; projects that keep docs as markdown in the repo itself are
// not found.
package docs

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/openmod-dev/esmtrack/httpcache"
)

const (
	defaultRTDSiteFormat = "http://%s.readthedocs.io"
	defaultRTDAPIURL     = "https://readthedocs.org/api/v3/projects/"
)

// Links are the documentation URLs found for one tool. Empty fields mean
// no site of that kind was found.
type Links struct {
	RTD   string
	Pages string
	Wiki  string
}

// Row pairs a tool ID with its documentation links.
type Row struct {
	ID string
	Links
}

// Prober checks candidate documentation URLs for a repository.
type Prober struct {
	httpClient    *http.Client
	cache         httpcache.Cacher
	logger        *slog.Logger
	rtdSiteFormat string
	rtdAPIURL     string
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPCache sets the HTTP response cache used for API lookups.
func WithHTTPCache(cache httpcache.Cacher) Option {
	return func(p *Prober) { p.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) { p.logger = logger }
}

// WithRTDEndpoints overrides the ReadTheDocs site format and API URL, for
// tests.
func WithRTDEndpoints(siteFormat, apiURL string) Option {
	return func(p *Prober) {
		p.rtdSiteFormat = siteFormat
		p.rtdAPIURL = apiURL
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		rtdSiteFormat: defaultRTDSiteFormat,
		rtdAPIURL:     defaultRTDAPIURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover returns the documentation links found for repoURL. A warning is
// logged when none of the probes succeed.
func (p *Prober) Discover(ctx context.Context, repoURL string) Links {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		p.logger.WarnContext(ctx, "unparseable repository url", "url", repoURL, "error", err)
		return Links{}
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	owner, repo := segments[0], segments[len(segments)-1]

	links := Links{
		RTD:   p.readTheDocs(ctx, owner, repo, repoURL),
		Pages: p.pages(ctx, parsed.Host, owner, repo),
		Wiki:  p.wiki(ctx, parsed.Host, repoURL),
	}
	if links == (Links{}) {
		p.logger.WarnContext(ctx, "no documentation found", "url", repoURL)
	}
	return links
}

// readTheDocs tries the candidate slugs a project typically registers
// under: its own name, its name with underscores dashed, owner-name when
// the plain name is taken, and name-documentation as a last resort.
func (p *Prober) readTheDocs(ctx context.Context, owner, repo, repoURL string) string {
	slugs := []string{
		repo,
		strings.ReplaceAll(repo, "_", "-"),
		owner + "-" + repo,
		repo + "-documentation",
	}
	for _, slug := range slugs {
		if p.verifyRTD(ctx, slug, repoURL) {
			return fmt.Sprintf(p.rtdSiteFormat, slug)
		}
	}
	return ""
}

// verifyRTD confirms that an existing ReadTheDocs site was actually built
// from the repository we expect, since an unrelated project may have
// claimed the slug first. The site's source repo is read from the RTD API
// and followed through redirects before comparing.
func (p *Prober) verifyRTD(ctx context.Context, slug, repoURL string) bool {
	if !p.headOK(ctx, fmt.Sprintf(p.rtdSiteFormat, slug)) {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.rtdAPIURL+strings.ToLower(slug), http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)
	body, err := httpcache.FetchURL(ctx, p.cache, p.httpClient, req, p.logger)
	if err != nil {
		return false
	}
	var project struct {
		Repository struct {
			URL string `json:"url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &project); err != nil || project.Repository.URL == "" {
		return false
	}
	return strings.EqualFold(p.finalURL(ctx, project.Repository.URL), repoURL)
}

// pages probes GitHub/GitLab Pages. Sites normally redirect to their
// stable docs, but some only serve /stable directly.
func (p *Prober) pages(ctx context.Context, host, owner, repo string) string {
	root := fmt.Sprintf("http://%s.%s/%s", owner, strings.Replace(host, ".com", ".io", 1), repo)
	for _, candidate := range []string{root, root + "/stable"} {
		if p.headOK(ctx, candidate) {
			return candidate
		}
	}
	return ""
}

// wiki probes the repository wiki. Bitbucket exposes it under the .git
// path; GitHub and GitLab use a sibling .wiki repository.
func (p *Prober) wiki(ctx context.Context, host, repoURL string) string {
	if host == "bitbucket.org" {
		if candidate := repoURL + ".git/wiki"; p.headOK(ctx, candidate) {
			return candidate
		}
		return ""
	}
	if candidate := repoURL + ".wiki.git"; p.headOK(ctx, candidate) {
		return candidate
	}
	return ""
}

// headOK reports whether a URL exists, following redirects.
func (p *Prober) headOK(ctx context.Context, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // HEAD response body is empty
	return resp.StatusCode < http.StatusBadRequest
}

// finalURL follows redirects and returns the URL a request lands on.
func (p *Prober) finalURL(ctx context.Context, startURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, startURL, http.NoBody)
	if err != nil {
		return startURL
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return startURL
	}
	defer resp.Body.Close() //nolint:errcheck // HEAD response body is empty
	return resp.Request.URL.String()
}

var docsColumns = []string{"id", "rtd", "pages", "wiki"}

// WriteCSV encodes docs rows as CSV, sorted by tool ID.
func WriteCSV(w io.Writer, rows []Row) error {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cw := csv.NewWriter(w)
	if err := cw.Write(docsColumns); err != nil {
		return err
	}
	for _, r := range sorted {
		if err := cw.Write([]string{r.ID, r.RTD, r.Pages, r.Wiki}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes previously written docs rows, used to skip tools whose
// links were already discovered.
func ReadCSV(r io.Reader) ([]Row, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, name := range docsColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("docs table: missing required column %q", name)
		}
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, Row{
			ID: rec[cols["id"]],
			Links: Links{
				RTD:   rec[cols["rtd"]],
				Pages: rec[cols["pages"]],
				Wiki:  rec[cols["wiki"]],
			},
		})
	}
	return rows, nil
}
