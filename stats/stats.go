// Package stats collects repository and package download statistics for
// the resolved tool inventory.
package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/openmod-dev/esmtrack/ecosystems"
)

// Row is the per-tool stats output. Download counts default to zero when
// no package source reports a figure.
type Row struct {
	URL                      string
	Owner                    string
	Language                 string
	License                  string
	CreatedAt                string
	UpdatedAt                string
	LatestReleasePublishedAt string
	Stars                    int
	Forks                    int
	TotalCommitters          int
	LastMonthDownloads       int64
	DependentReposCount      int64
	DDS                      float64
	Archived                 bool
}

// DownloadCounter returns monthly download figures for registries whose
// counts are missing from the repository catalog (Julia, currently).
type DownloadCounter interface {
	MonthlyDownloads(ctx context.Context, packageName string) (int64, error)
}

// Collector gathers stats rows from the catalog and registry clients.
type Collector struct {
	eco    *ecosystems.Client
	julia  DownloadCounter
	logger *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// New creates a Collector. julia may be nil, in which case Julia packages
// count as having no download figures.
func New(eco *ecosystems.Client, julia DownloadCounter, opts ...Option) *Collector {
	c := &Collector{eco: eco, julia: julia, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect produces one stats row per tool URL. Tools without a catalog
// entry are skipped with a warning rather than aborting the batch.
func (c *Collector) Collect(ctx context.Context, urls []string) []Row {
	var rows []Row
	for _, url := range urls {
		meta, err := c.eco.Metadata(ctx, url)
		if err != nil {
			c.logger.WarnContext(ctx, "no catalog entry for tool", "url", url, "error", err)
			continue
		}
		row := Row{
			URL:             url,
			Owner:           meta.Owner,
			Language:        meta.Language,
			License:         meta.License,
			CreatedAt:       meta.CreatedAt,
			UpdatedAt:       meta.UpdatedAt,
			Stars:           meta.Stars,
			Forks:           meta.Forks,
			TotalCommitters: meta.TotalCommitters,
			DDS:             meta.DDS,
			Archived:        meta.Archived,
		}
		c.addPackageStats(ctx, url, &row)
		rows = append(rows, row)
	}
	return rows
}

// addPackageStats aggregates download figures across a tool's package
// sources: Julia counts come from the Julia registry stats API since the
// repository catalog always reports them as null, last-month counts are
// summed, the latest release date is the max across sources, and the
// dependent-repo count is the max.
func (c *Collector) addPackageStats(ctx context.Context, url string, row *Row) {
	sources, err := c.eco.Packages(ctx, url)
	if err != nil {
		c.logger.WarnContext(ctx, "no package entry for tool", "url", url, "error", err)
		return
	}

	var latest time.Time
	for _, src := range sources {
		switch {
		case src.Ecosystem == "julia" && c.julia != nil:
			downloads, err := c.julia.MonthlyDownloads(ctx, src.Name)
			if err != nil {
				c.logger.WarnContext(ctx, "julia download lookup failed", "package", src.Name, "error", err)
			} else {
				row.LastMonthDownloads += downloads
			}
		case src.Downloads != nil && src.DownloadsPeriod == "last-month":
			row.LastMonthDownloads += *src.Downloads
		default:
			c.logger.WarnContext(ctx, "null package downloads", "package", src.Name, "ecosystem", src.Ecosystem)
		}

		if src.LatestReleasePublishedAt != "" {
			if released, err := time.Parse(time.RFC3339, src.LatestReleasePublishedAt); err == nil && released.After(latest) {
				latest = released
			}
		}
		if src.DependentReposCount != nil && *src.DependentReposCount > row.DependentReposCount {
			row.DependentReposCount = *src.DependentReposCount
		}
	}
	if !latest.IsZero() {
		row.LatestReleasePublishedAt = latest.Format("2006-01-02")
	}
}

var statsColumns = []string{
	"url", "owner", "archived", "stargazers_count", "forks_count", "language",
	"license", "created_at", "updated_at", "dds", "total_committers",
	"last_month_downloads", "dependent_repos_count", "latest_release_published_at",
}

// WriteCSV encodes stats rows as CSV, sorted by URL.
func WriteCSV(w io.Writer, rows []Row) error {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	cw := csv.NewWriter(w)
	if err := cw.Write(statsColumns); err != nil {
		return err
	}
	for _, r := range sorted {
		row := []string{
			r.URL, r.Owner, strconv.FormatBool(r.Archived),
			strconv.Itoa(r.Stars), strconv.Itoa(r.Forks), r.Language, r.License,
			r.CreatedAt, r.UpdatedAt, fmt.Sprintf("%g", r.DDS),
			strconv.Itoa(r.TotalCommitters),
			strconv.FormatInt(r.LastMonthDownloads, 10),
			strconv.FormatInt(r.DependentReposCount, 10),
			r.LatestReleasePublishedAt,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
