// Package dedupe collapses tool records that share a merge key into one
// canonical record per key.
package dedupe

import (
	"context"
	"log/slog"

	"github.com/openmod-dev/esmtrack/record"
)

// Key selects the merge key for a deduplication pass.
type Key func(record.Tool) string

// ByID merges on the normalized name identifier.
func ByID(t record.Tool) string { return t.ID }

// ByURL merges on the canonical repository URL.
func ByURL(t record.Tool) string { return t.URL }

// Resolve partitions tools by key and merges each group into a single
// record. The first record of a group (in input order) is the base; later
// records fill its empty fields first-wins and contribute to the name and
// source sets. Records with an empty merge key cannot be grouped and are
// dropped with a warning. Output preserves first-seen input order, so
// running Resolve twice over an already-deduplicated table is a no-op.
func Resolve(ctx context.Context, tools []record.Tool, key Key, logger *slog.Logger) []record.Tool {
	if logger == nil {
		logger = slog.Default()
	}

	index := make(map[string]int, len(tools))
	out := make([]record.Tool, 0, len(tools))
	duplicates := 0
	dropped := 0

	for _, t := range tools {
		k := key(t)
		if k == "" {
			dropped++
			continue
		}
		if i, ok := index[k]; ok {
			duplicates++
			out[i].Merge(t)
			continue
		}
		index[k] = len(out)
		out = append(out, t)
	}

	if dropped > 0 {
		logger.WarnContext(ctx, "dropped records with empty merge key", "count", dropped)
	}
	if duplicates > 0 {
		logger.WarnContext(ctx, "merged duplicate records", "count", duplicates)
	}
	return out
}
