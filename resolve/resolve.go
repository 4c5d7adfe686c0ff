// Package resolve collapses URL aliases, redirects, and forks of the same
// canonical repository using an external repository-metadata lookup.
package resolve

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/openmod-dev/esmtrack/dedupe"
	"github.com/openmod-dev/esmtrack/record"
)

// Status is the three-state outcome of a repository lookup. Callers branch
// on it explicitly instead of catching sentinel errors.
type Status int

const (
	// Found means the catalog has an entry for the URL.
	Found Status = iota
	// NotFound is definitive: the URL has no catalog entry and the row is
	// dropped, not retried.
	NotFound
	// Unavailable is a transient failure; the row is skipped for this run.
	Unavailable
)

// Result carries the metadata the resolver needs from a lookup.
type Result struct {
	CanonicalURL      string
	ForkUpstreamOwner string
	Status            Status
	Fork              bool
}

// Lookup queries an external repository catalog for a single URL.
type Lookup interface {
	Lookup(ctx context.Context, url string) Result
}

// Duplicates resolves groups of records that still collide on ID despite
// distinct URLs. Per candidate URL: not-found drops the row, a transient
// lookup failure drops the row for this run with a warning (conservative:
// under-inclusion beats a stale merge), a differing canonical URL rewrites
// the row, and a fork rewrites to <host>/<upstream owner, lower-cased>.
// Groups left with more than one distinct URL are kept as-is and logged as
// unresolved. The updated rows are re-deduplicated on URL, and fields lost
// with dropped rows are backfilled from the original by-ID table.
func Duplicates(ctx context.Context, tools []record.Tool, lookup Lookup, logger *slog.Logger) []record.Tool {
	if logger == nil {
		logger = slog.Default()
	}

	groups := make(map[string][]record.Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, t := range tools {
		if _, ok := groups[t.ID]; !ok {
			order = append(order, t.ID)
		}
		groups[t.ID] = append(groups[t.ID], t)
	}

	var updated []record.Tool
	for _, id := range order {
		group := groups[id]
		if len(group) == 1 {
			updated = append(updated, group[0])
			continue
		}
		updated = append(updated, resolveGroup(ctx, id, group, lookup, logger)...)
	}

	resolved := dedupe.Resolve(ctx, updated, dedupe.ByURL, logger)

	// Recover fields lost when rows were dropped for being not found.
	byID := make(map[string]record.Tool)
	for _, t := range dedupe.Resolve(ctx, tools, dedupe.ByID, logger) {
		byID[t.ID] = t
	}
	for i := range resolved {
		if original, ok := byID[resolved[i].ID]; ok {
			backfill(&resolved[i], original)
		}
	}
	return resolved
}

func resolveGroup(ctx context.Context, id string, group []record.Tool, lookup Lookup, logger *slog.Logger) []record.Tool {
	var kept []record.Tool
	for _, t := range group {
		res := lookup.Lookup(ctx, t.URL)
		switch res.Status {
		case NotFound:
			logger.WarnContext(ctx, "dropping URL with no catalog entry", "id", id, "url", t.URL)
			continue
		case Unavailable:
			logger.WarnContext(ctx, "catalog unavailable, skipping URL for this run", "id", id, "url", t.URL)
			continue
		case Found:
		}

		if res.CanonicalURL != "" && !strings.EqualFold(res.CanonicalURL, t.URL) {
			logger.InfoContext(ctx, "rewriting to canonical URL", "id", id, "from", t.URL, "to", res.CanonicalURL)
			t.URL = record.NormalizeURL(res.CanonicalURL)
		}
		if res.Fork && res.ForkUpstreamOwner != "" {
			if upstream := upstreamURL(t.URL, res.ForkUpstreamOwner); upstream != "" {
				logger.InfoContext(ctx, "rewriting fork to presumed upstream", "id", id, "from", t.URL, "to", upstream)
				t.URL = upstream
			}
		}
		kept = append(kept, t)
	}

	if distinctURLs(kept) > 1 {
		logger.WarnContext(ctx, "unresolved duplicate: multiple distinct URLs remain", "id", id, "urls", len(kept))
	}
	return kept
}

// upstreamURL computes the presumed upstream of a fork as
// <scheme>://<host>/<owner>, owner lower-cased.
func upstreamURL(repoURL, owner string) string {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return record.NormalizeURL(u.Scheme + "://" + u.Host + "/" + strings.ToLower(owner))
}

func distinctURLs(tools []record.Tool) int {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		seen[t.URL] = true
	}
	return len(seen)
}

func backfill(dst *record.Tool, src record.Tool) {
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	dst.Name.Union(src.Name)
	dst.Sources.Union(src.Sources)
}
