// Package esmtrack tracks open-source energy system modeling tools: it
// collates tool records from public catalogs, collapses duplicates and
// forks into one canonical row per tool, and classifies the GitHub users
// who interact with those tools by sector and country.
package esmtrack

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/openmod-dev/esmtrack/classify"
	"github.com/openmod-dev/esmtrack/dedupe"
	"github.com/openmod-dev/esmtrack/geocode"
	"github.com/openmod-dev/esmtrack/orgmap"
	"github.com/openmod-dev/esmtrack/record"
	"github.com/openmod-dev/esmtrack/resolve"
)

// FilterTools reduces the collated tool table to one row per tool: rows
// from ignored sources go first, then duplicates merge by ID and by URL,
// then rows whose URL is not a recognizable git host are dropped, then the
// manually assessed exclusions. Output is sorted by ID.
func FilterTools(ctx context.Context, tools []record.Tool, ignoreSources, exclusions []string, logger *slog.Logger) []record.Tool {
	if logger == nil {
		logger = slog.Default()
	}

	ignore := make(map[string]bool, len(ignoreSources))
	for _, s := range ignoreSources {
		ignore[s] = true
	}
	var kept []record.Tool
	for _, t := range tools {
		if fromIgnoredSource(t, ignore) {
			continue
		}
		kept = append(kept, t)
	}
	if n := len(tools) - len(kept); n > 0 {
		logger.WarnContext(ctx, "ignoring records from excluded sources", "count", n)
	}

	kept = dedupe.Resolve(ctx, kept, dedupe.ByID, logger)
	kept = dedupe.Resolve(ctx, kept, dedupe.ByURL, logger)
	kept = dropNonGit(ctx, kept, logger)
	kept = dropExclusions(ctx, kept, exclusions, logger)

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept
}

// ResolveDuplicates collapses records that still share an ID after URL
// deduplication, using the repository catalog to decide which URL is
// canonical.
func ResolveDuplicates(ctx context.Context, tools []record.Tool, lookup resolve.Lookup, logger *slog.Logger) []record.Tool {
	return resolve.Duplicates(ctx, tools, lookup, logger)
}

func fromIgnoredSource(t record.Tool, ignore map[string]bool) bool {
	if len(ignore) == 0 || t.Sources.Len() == 0 {
		return false
	}
	for _, s := range t.Sources.Values() {
		if !ignore[s] {
			return false
		}
	}
	return true
}

// dropNonGit keeps only rows whose URL host looks like a git forge.
// Projects that list a homepage instead of a repository cannot be tracked.
func dropNonGit(ctx context.Context, tools []record.Tool, logger *slog.Logger) []record.Tool {
	var kept []record.Tool
	for _, t := range tools {
		u, err := url.Parse(t.URL)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Host)
		if strings.Contains(host, "git") || strings.Contains(host, "bitbucket") {
			kept = append(kept, t)
		}
	}
	if n := len(tools) - len(kept); n > 0 {
		logger.WarnContext(ctx, "dropped entries without a git repository URL", "count", n)
	}
	return kept
}

func dropExclusions(ctx context.Context, tools []record.Tool, exclusions []string, logger *slog.Logger) []record.Tool {
	excluded := make(map[string]bool, len(exclusions))
	for _, id := range exclusions {
		excluded[id] = true
	}
	var kept []record.Tool
	for _, t := range tools {
		if !excluded[t.ID] {
			kept = append(kept, t)
		}
	}
	if n := len(tools) - len(kept); n > 0 {
		logger.WarnContext(ctx, "excluded entries following manual assessment", "count", n)
	}
	return kept
}

// ClassifyUsers assigns each user a canonical organization, a country, and
// a sector label. Users with no company text but an academic email domain
// take their institution's name as company. Countries come from the
// geocoded location first, the geocoded organization name second, and the
// email or blog domain last. Output is sorted by username.
func ClassifyUsers(ctx context.Context, users []record.User, classifier *classify.Classifier, mapper *orgmap.Mapper, resolver *geocode.Resolver) []record.User {
	var locations []string
	for _, u := range users {
		if u.Location != "" {
			locations = append(locations, u.Location)
		}
	}
	resolver.ResolveBatch(ctx, locations)

	out := make([]record.User, 0, len(users))
	for _, u := range users {
		company := u.Company
		if company == "" && u.EmailDomain != "" {
			// Take the first institution match; there could be several.
			if matches := classifier.AcademicMatches(u.EmailDomain); len(matches) > 0 {
				company = matches[0].Name
			}
		}
		if company != "" {
			u.MappedCompany = mapper.Map(company)
		}
		u.Country = userCountry(ctx, u, resolver, classifier)
		u.Classification = classifier.User(u)
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func userCountry(ctx context.Context, u record.User, resolver *geocode.Resolver, classifier *classify.Classifier) string {
	if country, ok := resolver.Country(u.Location); ok {
		return country
	}
	if len(u.MappedCompany) > 0 {
		resolver.ResolveBatch(ctx, u.MappedCompany)
		for _, org := range u.MappedCompany {
			if country, ok := resolver.Country(org); ok {
				return country
			}
		}
	}
	return classifier.UserCountry(u)
}
