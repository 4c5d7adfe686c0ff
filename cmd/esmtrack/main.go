// Command esmtrack maintains the open energy system modeling tool
// inventory.
//
// Usage:
//
//	esmtrack collect -out tools.csv
//	esmtrack filter -in tools.csv -out filtered.csv
//	esmtrack stats -in filtered.csv -out stats.csv
//	esmtrack docs -in filtered.csv -out docs.csv
//	esmtrack interactions -in filtered.csv -out interactions.csv
//	esmtrack users -in interactions.csv -out users.csv -orgs orgs.csv
//	esmtrack classify -in users.csv -out classifications.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmod-dev/esmtrack"
	"github.com/openmod-dev/esmtrack/catalog"
	"github.com/openmod-dev/esmtrack/classify"
	"github.com/openmod-dev/esmtrack/config"
	"github.com/openmod-dev/esmtrack/docs"
	"github.com/openmod-dev/esmtrack/ecosystems"
	"github.com/openmod-dev/esmtrack/geocode"
	"github.com/openmod-dev/esmtrack/ghusers"
	"github.com/openmod-dev/esmtrack/httpcache"
	"github.com/openmod-dev/esmtrack/orgmap"
	"github.com/openmod-dev/esmtrack/record"
	"github.com/openmod-dev/esmtrack/stats"
)

type app struct {
	logger *slog.Logger
	cache  *httpcache.Cache
	cfgDir string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	noCache := fs.Bool("no-cache", false, "disable HTTP caching")
	cacheTTL := fs.Duration("cache-ttl", 7*24*time.Hour, "cache time-to-live")
	cfgDir := fs.String("config", "config", "configuration directory")
	in := fs.String("in", "", "input CSV file")
	out := fs.String("out", "", "output CSV file")
	orgsOut := fs.String("orgs", "", "organizations output CSV file (users command)")
	manual := fs.String("manual", "", "manually curated tool list (collect command)")
	ignore := fs.String("ignore", "", "comma-separated sources to ignore (filter command)")
	refresh := fs.Bool("refresh", false, "re-fetch users already collected (users command)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	var cache *httpcache.Cache
	if *noCache {
		cache = httpcache.NewNull()
	} else {
		var err error
		cache, err = httpcache.New(*cacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
			cache = httpcache.NewNull()
		}
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}()

	a := &app{logger: logger, cache: cache, cfgDir: *cfgDir}
	ctx := context.Background()

	var err error
	switch cmd {
	case "collect":
		err = a.collect(ctx, *manual, *out)
	case "filter":
		err = a.filter(ctx, *in, *out, splitList(*ignore))
	case "stats":
		err = a.stats(ctx, *in, *out)
	case "docs":
		err = a.docs(ctx, *in, *out)
	case "interactions":
		err = a.interactions(ctx, *in, *out)
	case "users":
		err = a.users(ctx, *in, *out, *orgsOut, *refresh)
	case "classify":
		err = a.classify(ctx, *in, *out)
	default:
		usage()
		os.Exit(1) //nolint:gocritic // exitAfterDefer is acceptable in main
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: esmtrack <command> [options]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  collect       collate tool records from the public catalogs")
	fmt.Fprintln(os.Stderr, "  filter        deduplicate and filter the collated tool list")
	fmt.Fprintln(os.Stderr, "  stats         fetch repository and download statistics")
	fmt.Fprintln(os.Stderr, "  docs          discover documentation sites")
	fmt.Fprintln(os.Stderr, "  interactions  collect GitHub user interactions per repository")
	fmt.Fprintln(os.Stderr, "  users         collect GitHub user profile details")
	fmt.Fprintln(os.Stderr, "  classify      classify users by sector and country")
}

func (a *app) collect(ctx context.Context, manualPath, outPath string) error {
	sources := []catalog.Source{
		catalog.NewLFEnergy(catalog.WithLFEnergyHTTPCache(a.cache), catalog.WithLFEnergyLogger(a.logger)),
		catalog.NewGPST(catalog.WithGPSTHTTPCache(a.cache), catalog.WithGPSTLogger(a.logger)),
		catalog.NewOpenSustain(catalog.WithOpenSustainHTTPCache(a.cache), catalog.WithOpenSustainLogger(a.logger)),
	}
	tools, err := catalog.Collect(ctx, sources, a.logger)
	if err != nil {
		return err
	}

	if manualPath != "" {
		known := make([]string, 0, len(tools))
		for _, t := range tools {
			known = append(known, t.URL)
		}
		eco := ecosystems.New(ecosystems.WithHTTPCache(a.cache), ecosystems.WithLogger(a.logger))
		manualTools, err := catalog.Collect(ctx, []catalog.Source{
			catalog.NewManual(manualPath, known, eco, catalog.WithManualLogger(a.logger)),
		}, a.logger)
		if err != nil {
			return err
		}
		tools = append(tools, manualTools...)
	}

	return writeFile(outPath, func(f *os.File) error { return record.WriteTools(f, tools) })
}

func (a *app) filter(ctx context.Context, inPath, outPath string, ignoreSources []string) error {
	cfg, err := config.Load(a.cfgDir)
	if err != nil {
		return err
	}
	tools, err := readTools(inPath)
	if err != nil {
		return err
	}

	filtered := esmtrack.FilterTools(ctx, tools, ignoreSources, cfg.Exclusions, a.logger)
	eco := ecosystems.New(ecosystems.WithHTTPCache(a.cache), ecosystems.WithLogger(a.logger))
	resolved := esmtrack.ResolveDuplicates(ctx, filtered, eco, a.logger)

	return writeFile(outPath, func(f *os.File) error { return record.WriteTools(f, resolved) })
}

func (a *app) stats(ctx context.Context, inPath, outPath string) error {
	tools, err := readTools(inPath)
	if err != nil {
		return err
	}
	eco := ecosystems.New(ecosystems.WithHTTPCache(a.cache), ecosystems.WithLogger(a.logger))
	julia := stats.NewJulia(stats.WithJuliaHTTPCache(a.cache), stats.WithJuliaLogger(a.logger))
	collector := stats.New(eco, julia, stats.WithLogger(a.logger))

	rows := collector.Collect(ctx, toolURLs(tools))
	return writeFile(outPath, func(f *os.File) error { return stats.WriteCSV(f, rows) })
}

func (a *app) docs(ctx context.Context, inPath, outPath string) error {
	tools, err := readTools(inPath)
	if err != nil {
		return err
	}

	// Keep rows from a previous run so only new tools are probed.
	existing := make(map[string]docs.Links)
	if f, err := os.Open(outPath); err == nil {
		rows, err := docs.ReadCSV(f)
		f.Close() //nolint:errcheck // read-only file
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.Links != (docs.Links{}) {
				existing[row.ID] = row.Links
			}
		}
	}

	prober := docs.New(docs.WithHTTPCache(a.cache), docs.WithLogger(a.logger))
	rows := make([]docs.Row, 0, len(tools))
	for _, t := range tools {
		links, ok := existing[t.ID]
		if !ok {
			links = prober.Discover(ctx, t.URL)
		}
		rows = append(rows, docs.Row{ID: t.ID, Links: links})
	}
	return writeFile(outPath, func(f *os.File) error { return docs.WriteCSV(f, rows) })
}

func (a *app) interactions(ctx context.Context, inPath, outPath string) error {
	tools, err := readTools(inPath)
	if err != nil {
		return err
	}
	client := ghusers.New(ghusers.WithLogger(a.logger))
	interactions := client.CollectInteractions(ctx, toolURLs(tools))
	return writeFile(outPath, func(f *os.File) error { return ghusers.WriteInteractions(f, interactions) })
}

func (a *app) users(ctx context.Context, inPath, outPath, orgsPath string, refresh bool) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	interactions, err := ghusers.ReadInteractions(f)
	f.Close() //nolint:errcheck // read-only file
	if err != nil {
		return err
	}

	// Usernames collected in a previous run are skipped unless refreshing.
	collected := make(map[string]bool)
	appending := false
	if !refresh {
		if f, err := os.Open(outPath); err == nil {
			existing, err := record.ReadUsers(f)
			f.Close() //nolint:errcheck // read-only file
			if err != nil {
				return err
			}
			for _, u := range existing {
				collected[u.Username] = true
			}
			appending = len(existing) > 0
		}
	}

	client := ghusers.New(ghusers.WithLogger(a.logger))
	users, orgs := client.CollectDetails(ctx, interactions, collected)

	if appending {
		f, err := os.OpenFile(outPath, os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // operator-supplied output path
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // flushed by csv writer
		if err := record.WriteUsers(f, users, false); err != nil {
			return err
		}
	} else if err := writeFile(outPath, func(f *os.File) error { return record.WriteUsers(f, users, true) }); err != nil {
		return err
	}

	if orgsPath != "" {
		return writeFile(orgsPath, func(f *os.File) error { return ghusers.WriteOrgs(f, orgs) })
	}
	return nil
}

func (a *app) classify(ctx context.Context, inPath, outPath string) error {
	cfg, err := config.Load(a.cfgDir)
	if err != nil {
		return err
	}
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	users, err := record.ReadUsers(f)
	f.Close() //nolint:errcheck // read-only file
	if err != nil {
		return err
	}

	academic, err := classify.FetchAcademicDomains(ctx, a.cache, &http.Client{Timeout: 30 * time.Second}, a.logger)
	if err != nil {
		return err
	}
	classifier := classify.New(cfg.Rules, cfg.EmailDomains, academic, classify.WithLogger(a.logger))
	mapper := orgmap.New(cfg.Orgs)

	geocodeCache, err := geocode.LoadCache(filepath.Join(a.cfgDir, "geocode_cache.yaml"))
	if err != nil {
		return err
	}
	nominatim := geocode.NewNominatim(
		geocode.WithHTTPCache(a.cache),
		geocode.WithNominatimLogger(a.logger),
	)
	resolver := geocode.NewResolver(geocodeCache, cfg.CountryMapping, nominatim, geocode.WithLogger(a.logger))

	classified := esmtrack.ClassifyUsers(ctx, users, classifier, mapper, resolver)

	if err := writeFile(outPath, func(f *os.File) error { return record.WriteClassifications(f, classified) }); err != nil {
		return err
	}
	return geocodeCache.Flush()
}

func readTools(path string) ([]record.Tool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file
	return record.ReadTools(f)
}

func toolURLs(tools []record.Tool) []string {
	urls := make([]string, 0, len(tools))
	for _, t := range tools {
		urls = append(urls, t.URL)
	}
	return urls
}

func writeFile(path string, write func(*os.File) error) error {
	if path == "" {
		return fmt.Errorf("missing required -out flag")
	}
	f, err := os.Create(path) //nolint:gosec // operator-supplied output path
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
