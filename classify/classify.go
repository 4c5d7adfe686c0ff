// Package classify assigns sector and country labels to GitHub users from
// free-text signals, using prioritized, intersecting rule sets.
package classify

import (
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/openmod-dev/esmtrack/config"
	"github.com/openmod-dev/esmtrack/record"
)

// DefaultCompanyClassification is used when a user has company text but no
// rule produced a classification.
const DefaultCompanyClassification = "professional"

// Unknown is the label for users with no classification signals at all.
const Unknown = "unknown"

// Extract selects what an email-domain lookup should return.
type Extract int

const (
	// Category extracts the sector label.
	Category Extract = iota
	// Country extracts the associated country.
	Country
)

// UserPriority is the evidence-source order for sector classification.
var UserPriority = []string{"email_domain", "company", "blog", "bio"}

// CountryPriority is the evidence-source order for country classification.
var CountryPriority = []string{"email_domain", "blog"}

// Classifier holds the immutable rule sets for a run.
type Classifier struct {
	logger       *slog.Logger
	rules        config.Ruleset
	emailDomains config.EmailDomainRules
	academic     []AcademicDomain
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New creates a Classifier from loaded configuration and the academic
// domain database.
func New(rules config.Ruleset, emailDomains config.EmailDomainRules, academic []AcademicDomain, opts ...Option) *Classifier {
	c := &Classifier{
		logger:       slog.Default(),
		rules:        rules,
		emailDomains: emailDomains,
		academic:     academic,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Company classifies free text against the taxonomy. The first category
// with an exact match wins outright. Failing that, whole-word substring
// search runs over every category's match list, then over every category's
// keyword list, appending all hits.
func (c *Classifier) Company(text string) []string {
	for _, cat := range c.rules {
		for _, m := range cat.Match {
			if text == m {
				return []string{cat.Name}
			}
		}
	}

	var hits []string
	for _, cat := range c.rules {
		for _, m := range cat.Match {
			if wholeWord(m, text) {
				hits = append(hits, cat.Name)
				break
			}
		}
	}
	if len(hits) > 0 {
		return hits
	}

	for _, cat := range c.rules {
		for _, k := range cat.Keyword {
			if wholeWord(k, text) {
				hits = append(hits, cat.Name)
				break
			}
		}
	}
	return hits
}

// EmailDomain classifies a domain suffix, first against the academic
// domain database, then against the configured email-domain mapping.
func (c *Classifier) EmailDomain(domain string, extract Extract) []string {
	if domain == "" {
		return nil
	}

	if academic := c.AcademicMatches(domain); len(academic) > 0 {
		if extract == Category {
			return []string{"academic"}
		}
		var countries []string
		for _, entry := range academic {
			if entry.Country != "" {
				countries = append(countries, entry.Country)
			}
		}
		return countries
	}

	var hits []string
	for _, cat := range c.emailDomains {
		for _, rule := range cat.Match {
			if !suffixMatch(domain, rule.Domains) {
				continue
			}
			if extract == Category {
				hits = append(hits, cat.Name)
			} else if rule.Country != "" {
				hits = append(hits, rule.Country)
			}
		}
	}
	return hits
}

// AcademicMatches returns the academic-domain database entries whose
// domains are a suffix of the given domain.
func (c *Classifier) AcademicMatches(domain string) []AcademicDomain {
	var matches []AcademicDomain
	for _, entry := range c.academic {
		if suffixMatch(domain, entry.Domains) {
			matches = append(matches, entry)
		}
	}
	return matches
}

// User assigns a sector label, resolving the per-signal candidates in
// strict priority order. A user with company text but no rule hit defaults
// to professional; a user with no signals at all is unknown.
func (c *Classifier) User(u record.User) string {
	signals := map[string][]string{}

	if len(u.MappedCompany) > 0 {
		var all []string
		for _, org := range u.MappedCompany {
			all = append(all, c.Company(org)...)
		}
		signals["company"] = all
	}
	if u.EmailDomain != "" {
		signals["email_domain"] = c.EmailDomain(u.EmailDomain, Category)
	}
	if u.Blog != "" {
		signals["blog"] = c.EmailDomain(blogHost(u.Blog), Category)
	}
	if u.Bio != "" || u.Readme != "" {
		text := strings.ToLower(strings.TrimSpace(u.Bio + " " + u.Readme))
		signals["bio"] = c.Company(text)
	}

	classification, ok := Resolve(signals, UserPriority)
	switch {
	case ok:
		return classification
	case len(u.MappedCompany) > 0:
		return DefaultCompanyClassification
	default:
		return Unknown
	}
}

// UserCountry assigns a country from email and blog domains. Returns ""
// when neither signal resolves.
func (c *Classifier) UserCountry(u record.User) string {
	signals := map[string][]string{}
	if u.EmailDomain != "" {
		signals["email_domain"] = c.EmailDomain(u.EmailDomain, Country)
	}
	if u.Blog != "" {
		signals["blog"] = c.EmailDomain(blogHost(u.Blog), Country)
	}
	country, _ := Resolve(signals, CountryPriority)
	return country
}

// Resolve narrows per-source candidate sets using an ordered list of
// evidence sources. The running set seeds from the highest-priority
// source; an empty running set is replaced by the current source, a
// singleton stops iteration (that value is authoritative), and a non-empty
// current source intersects the running set. Sources with no candidates
// have no effect. The result is the sorted comma-join of whatever remains;
// ok is false when nothing classified.
func Resolve(classifications map[string][]string, priority []string) (result string, ok bool) {
	current := candidateSet(classifications[priority[0]])
	for _, source := range priority {
		next := candidateSet(classifications[source])
		if len(current) == 0 {
			current = next
		}
		if len(current) == 1 {
			break
		}
		if len(next) == 0 {
			continue
		}
		current = intersect(current, next)
	}

	if len(current) == 0 {
		return "", false
	}
	remaining := make([]string, 0, len(current))
	for v := range current {
		remaining = append(remaining, v)
	}
	sort.Strings(remaining)
	return strings.Join(remaining, ","), true
}

func candidateSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for v := range a {
		if b[v] {
			out[v] = true
		}
	}
	return out
}

func suffixMatch(domain string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(domain, s) {
			return true
		}
	}
	return false
}

func wholeWord(substring, text string) bool {
	if substring == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(substring) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func blogHost(blog string) string {
	u, err := url.Parse(blog)
	if err != nil {
		return ""
	}
	return u.Host
}
