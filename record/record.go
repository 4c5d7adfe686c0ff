// Package record defines the tabular entities shared by the inventory and
// user-analysis pipelines, plus the identity normalization rules that make
// free-text names comparable across catalogs.
package record

import (
	"regexp"
	"sort"
	"strings"
)

var idSeparators = regexp.MustCompile(`[\s\-.]+`)

// NormalizeID canonicalizes a free-text tool name into a stable identifier:
// lower-cased, trimmed, with runs of whitespace, hyphens, and periods
// replaced by underscores. Two names producing the same identifier refer to
// the same logical tool. Empty input maps to the empty identifier, which
// downstream resolvers treat as unmergeable.
func NormalizeID(name string) string {
	return idSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}

// NormalizeURL canonicalizes a repository URL for use as a merge key:
// lower-cased with any trailing slash stripped.
func NormalizeURL(url string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(url)), "/")
}

// Set is an insertion-ordered set of strings. Multi-value fields (sources,
// merged names) are sets internally and serialize to sorted comma-joined
// strings only at the CSV boundary.
type Set struct {
	seen   map[string]bool
	values []string
}

// NewSet returns a Set containing the given values, deduplicated.
func NewSet(values ...string) Set {
	var s Set
	s.AddAll(values...)
	return s
}

// ParseSet splits a comma-joined string into a Set, ignoring empty elements.
func ParseSet(joined string) Set {
	var s Set
	for _, v := range strings.Split(joined, ",") {
		if v = strings.TrimSpace(v); v != "" {
			s.Add(v)
		}
	}
	return s
}

// Add inserts a value unless it is empty or already present.
func (s *Set) Add(value string) {
	if value == "" || s.seen[value] {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	s.seen[value] = true
	s.values = append(s.values, value)
}

// AddAll inserts each value in order.
func (s *Set) AddAll(values ...string) {
	for _, v := range values {
		s.Add(v)
	}
}

// Union inserts every value of other.
func (s *Set) Union(other Set) {
	s.AddAll(other.values...)
}

// Has reports whether value is in the set.
func (s Set) Has(value string) bool { return s.seen[value] }

// Len returns the number of values.
func (s Set) Len() int { return len(s.values) }

// Values returns the values in insertion order.
func (s Set) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Join returns the sorted, comma-joined serialization used at the storage
// boundary.
func (s Set) Join() string {
	sorted := s.Values()
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Equal reports whether two sets contain the same values, ignoring order.
func (s Set) Equal(other Set) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for _, v := range s.values {
		if !other.seen[v] {
			return false
		}
	}
	return true
}

// Tool is one row of the tool inventory. Empty string is the null value for
// scalar fields; after resolution both ID and URL are unique across the
// table.
type Tool struct {
	ID          string
	URL         string
	Category    string
	Description string
	Name        Set
	Sources     Set
}

// Merge folds src into t: empty scalar fields are filled from src
// (first-wins; an existing non-empty value is never overridden), and the
// Name and Sources sets take the union. Tie-breaking is deterministic by
// input order, not by any quality heuristic; this is a documented
// limitation of the reconciliation pass.
func (t *Tool) Merge(src Tool) {
	fill(&t.ID, src.ID)
	fill(&t.URL, src.URL)
	fill(&t.Category, src.Category)
	fill(&t.Description, src.Description)
	t.Name.Union(src.Name)
	t.Sources.Union(src.Sources)
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// User is one row of the GitHub user table. Derived fields
// (Classification, MappedCompany, Country) are populated by the classifier.
type User struct {
	Username       string
	Company        string
	Blog           string
	Location       string
	EmailDomain    string
	Bio            string
	Readme         string
	TwitterHandle  string
	Orgs           Set
	Repos          Set
	Followers      int
	Following      int
	Classification string
	MappedCompany  []string
	Country        string
}
