// Package catalog collects raw tool records from the upstream tool
// catalogs (LF Energy landscape, G-PST opentools, OpenSustain.tech, and
// the manually curated list).
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmod-dev/esmtrack/record"
)

// ToolTypes are the model categories the inventory tracks. Catalog entries
// outside these categories are skipped where the source provides them.
var ToolTypes = []string{"production-cost", "capacity-expansion", "power-flow", "other"}

// Source yields raw tool records from one upstream catalog.
type Source interface {
	Name() string
	Tools(ctx context.Context) ([]record.Tool, error)
}

// Collect concatenates all sources into one raw table, normalizing URLs,
// assigning identifiers, and tagging each record with its source. A source
// failure aborts the run: a partially collected inventory is worse than
// none.
func Collect(ctx context.Context, sources []Source, logger *slog.Logger) ([]record.Tool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var all []record.Tool
	for _, src := range sources {
		tools, err := src.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect from %s: %w", src.Name(), err)
		}
		logger.InfoContext(ctx, "collected tools", "source", src.Name(), "count", len(tools))

		for _, t := range tools {
			t.URL = record.NormalizeURL(t.URL)
			if t.ID == "" {
				if names := t.Name.Values(); len(names) > 0 {
					t.ID = record.NormalizeID(names[0])
				}
			}
			t.Sources.Add(src.Name())
			all = append(all, t)
		}
	}
	return all, nil
}

func isToolType(category string) bool {
	for _, t := range ToolTypes {
		if category == t {
			return true
		}
	}
	return false
}
