package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openmod-dev/esmtrack/record"
	"github.com/openmod-dev/esmtrack/resolve"
)

type staticSource struct {
	name  string
	tools []record.Tool
	err   error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Tools(context.Context) ([]record.Tool, error) { return s.tools, s.err }

func TestCollect(t *testing.T) {
	sources := []Source{
		&staticSource{name: "a", tools: []record.Tool{
			{URL: "https://GitHub.com/PyPSA/PyPSA/", Name: record.NewSet("PyPSA")},
		}},
		&staticSource{name: "b", tools: []record.Tool{
			{URL: "https://github.com/calliope-project/calliope", Name: record.NewSet("Calliope Project")},
		}},
	}

	got, err := Collect(context.Background(), sources, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []record.Tool{
		{
			ID:      "pypsa",
			URL:     "https://github.com/pypsa/pypsa",
			Name:    record.NewSet("PyPSA"),
			Sources: record.NewSet("a"),
		},
		{
			ID:      "calliope_project",
			URL:     "https://github.com/calliope-project/calliope",
			Name:    record.NewSet("Calliope Project"),
			Sources: record.NewSet("b"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Collect mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectAbortsOnSourceError(t *testing.T) {
	sources := []Source{
		&staticSource{name: "a", tools: []record.Tool{{URL: "https://github.com/x/a", Name: record.NewSet("a")}}},
		&staticSource{name: "broken", err: errors.New("feed unreachable")},
	}

	if _, err := Collect(context.Background(), sources, nil); err == nil {
		t.Fatal("expected error from broken source, got nil")
	}
}

const landscapeYAML = `
landscape:
  - name: Energy Systems
    subcategories:
      - name: Modeling and Optimization
        items:
          - name: PyPSA
            description: power system analysis
            repo_url: https://github.com/pypsa/pypsa
          - name: Tool Without Repo
            description: homepage only
            homepage_url: https://example.com/tool
      - name: Something Else
        items:
          - name: Unrelated
            repo_url: https://github.com/x/unrelated
  - name: Other Category
    subcategories:
      - name: Modeling and Optimization
        items:
          - name: Also Unrelated
            repo_url: https://github.com/x/also
`

func TestLFEnergyTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(landscapeYAML)) //nolint:errcheck // test helper
	}))
	defer server.Close()

	src := NewLFEnergy(WithLFEnergyFeedURL(server.URL))
	got, err := src.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	want := []record.Tool{
		{URL: "https://github.com/pypsa/pypsa", Description: "power system analysis", Name: record.NewSet("PyPSA")},
		{URL: "https://example.com/tool", Description: "homepage only", Name: record.NewSet("Tool Without Repo")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}
}

func TestGPSTTools(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/listing", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"download_url": "` + server.URL + `/tools/a.yaml"},
			{"download_url": "` + server.URL + `/tools/b.yaml"}
		]`)) //nolint:errcheck // test helper
	})
	mux.HandleFunc("/tools/a.yaml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`
name: Tool A
description: a production cost model
url_sourcecode: https://github.com/x/tool-a
categories:
  - production-cost
  - data
`)) //nolint:errcheck // test helper
	})
	mux.HandleFunc("/tools/b.yaml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`
name: Tool B
description: not a model at all
url_sourcecode: https://github.com/x/tool-b
categories:
  - data
`)) //nolint:errcheck // test helper
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	src := NewGPST(WithGPSTListingURL(server.URL + "/listing"))
	got, err := src.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	want := []record.Tool{
		{
			URL:         "https://github.com/x/tool-a",
			Description: "a production cost model",
			Category:    "production-cost",
			Name:        record.NewSet("Tool A"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenSustainTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"git_url": ["https://github.com/pypsa/pypsa", "https://github.com/x/solar", "https://github.com/x/grid"],
			"description": ["power system analysis", "solar stuff", "grid planning"],
			"project_names": ["PyPSA", "Solar Tool", "Grid Tool"],
			"sub_category": [["L", "Energy System Modeling Frameworks"], ["L", "Solar Photovoltaics"], ["L", "Grid Analysis and Planning"]]
		}`)) //nolint:errcheck // test helper
	}))
	defer server.Close()

	src := NewOpenSustain(WithOpenSustainTableURL(server.URL))
	got, err := src.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	want := []record.Tool{
		{URL: "https://github.com/pypsa/pypsa", Description: "power system analysis", Name: record.NewSet("PyPSA")},
		{URL: "https://github.com/x/grid", Description: "grid planning", Name: record.NewSet("Grid Tool")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}
}

type mapLookup map[string]resolve.Status

func (m mapLookup) Lookup(_ context.Context, url string) resolve.Result {
	if status, ok := m[url]; ok {
		return resolve.Result{Status: status}
	}
	return resolve.Result{Status: resolve.NotFound}
}

func TestManualTools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual_tools.csv")
	csv := "source_url,notes\n" +
		"https://github.com/x/known,already collected\n" +
		"github.com/x/valid,missing scheme\n" +
		"https://github.com/x/bogus,no catalog entry\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	lookup := mapLookup{"https://github.com/x/valid": resolve.Found}
	src := NewManual(path, []string{"https://github.com/x/known"}, lookup)

	got, err := src.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	want := []record.Tool{
		{URL: "https://github.com/x/known", Name: record.NewSet("known")},
		{URL: "https://github.com/x/valid", Name: record.NewSet("valid")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}
}

func TestManualMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual_tools.csv")
	if err := os.WriteFile(path, []byte("url\nhttps://github.com/x/a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewManual(path, nil, mapLookup{})
	if _, err := src.Tools(context.Background()); err == nil ||
		!strings.Contains(err.Error(), "source_url") {
		t.Fatalf("Tools error = %v, want missing column error", err)
	}
}
