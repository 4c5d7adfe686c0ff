// Package ghusers collects the GitHub users who interact with the tracked
// repositories: who starred, forked, watched, or opened issues and pull
// requests, and the public profile details of each of those users.
package ghusers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/record"
)

const (
	defaultAPIURL = "https://api.github.com"
	defaultRawURL = "https://raw.githubusercontent.com"

	perPage        = 100
	defaultWorkers = 4
)

// InteractionTypes are the repository interactions collected, in the order
// they are fetched.
var InteractionTypes = []string{"stargazers", "forks", "watchers", "issues", "pulls"}

// Interaction records one user touching one repository. Timestamp is
// RFC3339 or empty when the interaction kind carries no date (watchers).
type Interaction struct {
	Username  string
	Timestamp string
	Type      string
	Repo      string
}

// Org is a GitHub organization a collected user belongs to.
type Org struct {
	Login       string
	Description string
}

// Client talks to the GitHub REST API. Unauthenticated clients work but
// hit the 60 requests/hour limit almost immediately; set GITHUB_TOKEN.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	token      string
	apiURL     string
	rawURL     string
	workers    int
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the API token explicitly instead of reading GITHUB_TOKEN.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPCache sets the HTTP response cache.
func WithHTTPCache(cache httpcache.Cacher) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBaseURLs overrides the API and raw content endpoints, for tests.
func WithBaseURLs(apiURL, rawURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimSuffix(apiURL, "/")
		c.rawURL = strings.TrimSuffix(rawURL, "/")
	}
}

// WithWorkers sets the number of concurrent repository fetches.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a GitHub client, reading GITHUB_TOKEN from the environment
// when no token option is given.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		token:      os.Getenv("GITHUB_TOKEN"),
		apiURL:     defaultAPIURL,
		rawURL:     defaultRawURL,
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.token == "" {
		c.logger.Warn("no GITHUB_TOKEN set, expect rate limiting")
	}
	return c
}

// CollectInteractions gathers interactions for every github.com URL in
// repoURLs, skipping repositories hosted elsewhere. Failures on a single
// repository are logged and do not abort the batch.
func (c *Client) CollectInteractions(ctx context.Context, repoURLs []string) []Interaction {
	var (
		mu           sync.Mutex
		wg           sync.WaitGroup
		interactions []Interaction
	)
	sem := make(chan struct{}, c.workers)

	for _, repoURL := range repoURLs {
		repo, ok := strings.CutPrefix(repoURL, "https://github.com/")
		if !ok {
			c.logger.InfoContext(ctx, "skipping non-github repository", "url", repoURL)
			continue
		}
		wg.Add(1)
		go func(repo string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			c.logger.InfoContext(ctx, "collecting users", "repo", repo)
			rows, err := c.RepoInteractions(ctx, repo)
			if err != nil {
				c.logger.WarnContext(ctx, "interaction collection failed", "repo", repo, "error", err)
				return
			}
			mu.Lock()
			interactions = append(interactions, rows...)
			mu.Unlock()
		}(repo)
	}
	wg.Wait()

	sort.SliceStable(interactions, func(i, j int) bool {
		if interactions[i].Repo != interactions[j].Repo {
			return interactions[i].Repo < interactions[j].Repo
		}
		return interactions[i].Type < interactions[j].Type
	})
	return interactions
}

// RepoInteractions fetches all interaction kinds for one repository in
// owner/name form.
func (c *Client) RepoInteractions(ctx context.Context, repo string) ([]Interaction, error) {
	var interactions []Interaction
	for _, kind := range InteractionTypes {
		rows, err := c.interactions(ctx, repo, kind)
		if err != nil {
			return nil, fmt.Errorf("%s for %s: %w", kind, repo, err)
		}
		interactions = append(interactions, rows...)
	}
	return interactions, nil
}

func (c *Client) interactions(ctx context.Context, repo, kind string) ([]Interaction, error) {
	var (
		path   string
		accept string
		query  url.Values = url.Values{}
	)
	switch kind {
	case "stargazers":
		path = "/repos/" + repo + "/stargazers"
		// The star+json media type includes starred_at.
		accept = "application/vnd.github.star+json"
	case "forks":
		path = "/repos/" + repo + "/forks"
	case "watchers":
		path = "/repos/" + repo + "/subscribers"
	case "issues":
		path = "/repos/" + repo + "/issues"
		query.Set("state", "all")
	case "pulls":
		path = "/repos/" + repo + "/pulls"
		query.Set("state", "all")
	default:
		return nil, fmt.Errorf("unknown interaction type %q", kind)
	}

	var interactions []Interaction
	err := c.paginate(ctx, path, query, accept, func(page []byte) (int, error) {
		var entries []struct {
			StarredAt string `json:"starred_at"`
			CreatedAt string `json:"created_at"`
			Login     string `json:"login"`
			User      struct {
				Login string `json:"login"`
			} `json:"user"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
		}
		if err := json.Unmarshal(page, &entries); err != nil {
			return 0, err
		}
		for _, e := range entries {
			username := e.Login
			if username == "" {
				username = e.User.Login
			}
			if username == "" {
				username = e.Owner.Login
			}
			if username == "" {
				continue
			}
			timestamp := e.StarredAt
			if timestamp == "" {
				timestamp = e.CreatedAt
			}
			interactions = append(interactions, Interaction{
				Username:  username,
				Timestamp: timestamp,
				Type:      kind,
				Repo:      repo,
			})
		}
		return len(entries), nil
	})
	if err != nil {
		return nil, err
	}
	return interactions, nil
}

// paginate walks list pages until a short page signals the end.
func (c *Client) paginate(ctx context.Context, path string, query url.Values, accept string, handle func([]byte) (int, error)) error {
	query.Set("per_page", strconv.Itoa(perPage))
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		body, err := c.get(ctx, c.apiURL+path+"?"+query.Encode(), accept)
		if err != nil {
			return err
		}
		n, err := handle(body)
		if err != nil {
			return err
		}
		if n < perPage {
			return nil
		}
	}
}

// Details fetches the public profile for one user: profile fields, the
// profile README from the username/username convention repository, and
// organization memberships.
func (c *Client) Details(ctx context.Context, username string, repos record.Set) (record.User, []Org, error) {
	body, err := c.get(ctx, c.apiURL+"/users/"+url.PathEscape(username), "")
	if err != nil {
		return record.User{}, nil, fmt.Errorf("user %s: %w", username, err)
	}
	var profile struct {
		Company         string `json:"company"`
		Blog            string `json:"blog"`
		Location        string `json:"location"`
		Email           string `json:"email"`
		Bio             string `json:"bio"`
		TwitterUsername string `json:"twitter_username"`
		Followers       int    `json:"followers"`
		Following       int    `json:"following"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return record.User{}, nil, fmt.Errorf("parse user %s: %w", username, err)
	}

	user := record.User{
		Username:      username,
		Company:       profile.Company,
		Blog:          profile.Blog,
		Location:      profile.Location,
		EmailDomain:   emailDomain(profile.Email),
		Bio:           profile.Bio,
		TwitterHandle: profile.TwitterUsername,
		Followers:     profile.Followers,
		Following:     profile.Following,
		Repos:         repos,
	}

	// The profile README lives in a repository named after the user.
	// Most users do not have one.
	readme, err := c.get(ctx, fmt.Sprintf("%s/%s/%s/HEAD/README.md", c.rawURL, username, username), "")
	if err == nil {
		user.Readme = string(readme)
	}

	orgs, err := c.orgs(ctx, username)
	if err != nil {
		c.logger.WarnContext(ctx, "org lookup failed", "username", username, "error", err)
	}
	for _, org := range orgs {
		user.Orgs.Add(org.Login)
	}
	return user, orgs, nil
}

func (c *Client) orgs(ctx context.Context, username string) ([]Org, error) {
	var orgs []Org
	err := c.paginate(ctx, "/users/"+url.PathEscape(username)+"/orgs", url.Values{}, "", func(page []byte) (int, error) {
		var entries []struct {
			Login       string `json:"login"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(page, &entries); err != nil {
			return 0, err
		}
		for _, e := range entries {
			orgs = append(orgs, Org{Login: e.Login, Description: e.Description})
		}
		return len(entries), nil
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

// CollectDetails fetches profile details for every distinct username in
// interactions, skipping usernames already collected in a previous run.
// Users are returned sorted by username; organizations are deduplicated by
// login.
func (c *Client) CollectDetails(ctx context.Context, interactions []Interaction, collected map[string]bool) ([]record.User, []Org) {
	repoSets := make(map[string]*record.Set)
	for _, in := range interactions {
		if collected[in.Username] {
			continue
		}
		set, ok := repoSets[in.Username]
		if !ok {
			set = &record.Set{}
			repoSets[in.Username] = set
		}
		set.Add(in.Repo)
	}
	usernames := make([]string, 0, len(repoSets))
	for username := range repoSets {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	c.logger.InfoContext(ctx, "collecting user details", "users", len(usernames))

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		users []record.User
		orgs  = make(map[string]Org)
	)
	sem := make(chan struct{}, c.workers)
	for _, username := range usernames {
		wg.Add(1)
		go func(username string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			user, userOrgs, err := c.Details(ctx, username, *repoSets[username])
			if err != nil {
				c.logger.WarnContext(ctx, "user detail fetch failed", "username", username, "error", err)
				return
			}
			mu.Lock()
			users = append(users, user)
			for _, org := range userOrgs {
				orgs[org.Login] = org
			}
			mu.Unlock()
		}(username)
	}
	wg.Wait()

	sort.SliceStable(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	logins := make([]string, 0, len(orgs))
	for login := range orgs {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	orgList := make([]Org, 0, len(logins))
	for _, login := range logins {
		orgList = append(orgList, orgs[login])
	}
	return users, orgList
}

// get performs an authenticated GET and returns the body.
func (c *Client) get(ctx context.Context, fetchURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", httpcache.UserAgent)
	if c.token != "" && strings.HasPrefix(fetchURL, c.apiURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
}

func emailDomain(email string) string {
	if _, domain, ok := strings.Cut(email, "@"); ok {
		return strings.ToLower(domain)
	}
	return ""
}
