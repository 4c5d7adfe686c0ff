package stats

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openmod-dev/esmtrack/ecosystems"
)

type fakeCounter struct {
	downloads map[string]int64
	calls     int
}

func (f *fakeCounter) MonthlyDownloads(_ context.Context, name string) (int64, error) {
	f.calls++
	return f.downloads[name], nil
}

func statsServer(t *testing.T) (*ecosystems.Client, func()) {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/repositories/lookup", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"repository_url": "` + server.URL + `/entry"}`)) //nolint:errcheck // test helper
	})
	mux.HandleFunc("/entry", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"owner": "pypsa",
			"language": "Python",
			"license": "mit",
			"created_at": "2016-01-01T00:00:00.000Z",
			"updated_at": "2025-06-01T00:00:00.000Z",
			"stargazers_count": 1200,
			"forks_count": 400,
			"archived": false,
			"commit_stats": {"dds": 0.91, "total_committers": 85}
		}`)) //nolint:errcheck // test helper
	})
	mux.HandleFunc("/packages/lookup", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"ecosystem": "pypi", "name": "pypsa", "downloads": 52000, "downloads_period": "last-month",
			 "latest_release_published_at": "2025-05-01T12:00:00.000Z", "dependent_repos_count": 120},
			{"ecosystem": "conda", "name": "pypsa", "downloads": null,
			 "latest_release_published_at": "2025-04-01T12:00:00.000Z", "dependent_repos_count": 7},
			{"ecosystem": "julia", "name": "PyPSA", "downloads": null}
		]`)) //nolint:errcheck // test helper
	})
	server = httptest.NewServer(mux)
	client := ecosystems.New(ecosystems.WithBaseURLs(
		server.URL+"/repositories/lookup?url=",
		server.URL+"/packages/lookup?repository_url=",
	))
	return client, server.Close
}

func TestCollect(t *testing.T) {
	eco, closeServer := statsServer(t)
	defer closeServer()
	julia := &fakeCounter{downloads: map[string]int64{"PyPSA": 300}}
	collector := New(eco, julia)

	rows := collector.Collect(context.Background(), []string{"https://github.com/pypsa/pypsa"})

	want := []Row{{
		URL:                      "https://github.com/pypsa/pypsa",
		Owner:                    "pypsa",
		Language:                 "Python",
		License:                  "mit",
		CreatedAt:                "2016-01-01T00:00:00.000Z",
		UpdatedAt:                "2025-06-01T00:00:00.000Z",
		LatestReleasePublishedAt: "2025-05-01",
		Stars:                    1200,
		Forks:                    400,
		TotalCommitters:          85,
		LastMonthDownloads:       52300,
		DependentReposCount:      120,
		DDS:                      0.91,
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Collect mismatch (-want +got):\n%s", diff)
	}
	if julia.calls != 1 {
		t.Errorf("julia counter called %d times, want 1", julia.calls)
	}
}

func TestCollectSkipsUnknownRepos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	eco := ecosystems.New(ecosystems.WithBaseURLs(
		server.URL+"/repositories/lookup?url=",
		server.URL+"/packages/lookup?repository_url=",
	))
	collector := New(eco, nil)

	rows := collector.Collect(context.Background(), []string{"https://github.com/nobody/nothing"})
	if len(rows) != 0 {
		t.Errorf("Collect returned %d rows for unknown repo, want 0", len(rows))
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{URL: "https://github.com/b/b", Owner: "b", Stars: 2},
		{URL: "https://github.com/a/a", Owner: "a", Stars: 1, DDS: 0.5, LastMonthDownloads: 10},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[1], "https://github.com/a/a,a,") {
		t.Errorf("rows not sorted by URL: %q", lines[1])
	}
}

func TestJuliaMonthlyDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/PowerModels") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"total_requests": 4321}`)) //nolint:errcheck // test helper
	}))
	defer server.Close()

	client := NewJulia(WithJuliaBaseURL(server.URL + "/api/v1/monthly_downloads/"))
	got, err := client.MonthlyDownloads(context.Background(), "PowerModels")
	if err != nil {
		t.Fatalf("MonthlyDownloads: %v", err)
	}
	if got != 4321 {
		t.Errorf("MonthlyDownloads = %d, want 4321", got)
	}

	if _, err := client.MonthlyDownloads(context.Background(), "Missing"); err == nil {
		t.Error("expected error for unknown package, got nil")
	}
}
