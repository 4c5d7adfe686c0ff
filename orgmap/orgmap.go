// Package orgmap normalizes raw company strings to canonical organization
// names for aggregation and reporting.
package orgmap

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/openmod-dev/esmtrack/config"
)

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases the text, replaces @ with a space, collapses
// whitespace, and strips diacritics.
func Normalize(text string) string {
	normalized := strings.ToLower(text)
	normalized = strings.ReplaceAll(normalized, "@", " ")
	normalized = strings.Join(strings.Fields(normalized), " ")
	if folded, _, err := transform.String(foldDiacritics, normalized); err == nil {
		normalized = folded
	}
	return normalized
}

// Mapper resolves raw company strings against the org mapping config.
type Mapper struct {
	orgs []config.Org
}

// New creates a Mapper over the loaded org mapping.
func New(orgs []config.Org) *Mapper {
	return &Mapper{orgs: orgs}
}

// Map normalizes a raw company string and resolves it to one or more
// canonical organization names, in strict fallback order: exact match on
// name/shortname, exact match on variations, whole-word substring match on
// name/shortname, whole-word substring match on variations. Unmapped
// strings pass through as the normalized text itself.
func (m *Mapper) Map(raw string) []string {
	normalized := Normalize(raw)

	if mapped := m.exactNames(normalized); len(mapped) > 0 {
		return mapped
	}
	if mapped := m.exactVariations(normalized); len(mapped) > 0 {
		return mapped
	}
	if mapped := m.substringNames(normalized); len(mapped) > 0 {
		return mapped
	}
	if mapped := m.substringVariations(normalized); len(mapped) > 0 {
		return mapped
	}
	return []string{normalized}
}

func (m *Mapper) exactNames(text string) []string {
	var mapped []string
	for _, org := range m.orgs {
		if text == org.Name || (org.Shortname != "" && text == org.Shortname) {
			mapped = append(mapped, org.Name)
		}
	}
	return mapped
}

func (m *Mapper) exactVariations(text string) []string {
	var mapped []string
	for _, org := range m.orgs {
		for _, variation := range org.Variations {
			if text == variation {
				mapped = append(mapped, org.Name)
				break
			}
		}
	}
	return mapped
}

func (m *Mapper) substringNames(text string) []string {
	var mapped []string
	for _, org := range m.orgs {
		if wholeWord(org.Name, text) || wholeWord(org.Shortname, text) {
			mapped = append(mapped, org.Name)
		}
	}
	return mapped
}

func (m *Mapper) substringVariations(text string) []string {
	var mapped []string
	for _, org := range m.orgs {
		for _, variation := range org.Variations {
			if wholeWord(variation, text) {
				mapped = append(mapped, org.Name)
				break
			}
		}
	}
	return mapped
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
