package esmtrack

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openmod-dev/esmtrack/classify"
	"github.com/openmod-dev/esmtrack/config"
	"github.com/openmod-dev/esmtrack/geocode"
	"github.com/openmod-dev/esmtrack/orgmap"
	"github.com/openmod-dev/esmtrack/record"
)

func TestFilterTools(t *testing.T) {
	tools := []record.Tool{
		{ID: "pypsa", URL: "https://github.com/pypsa/pypsa", Sources: record.NewSet("a"), Name: record.NewSet("PyPSA")},
		{ID: "pypsa", URL: "https://github.com/pypsa/pypsa", Sources: record.NewSet("b"), Name: record.NewSet("pypsa"), Description: "power system model"},
		{ID: "homepage_only", URL: "https://example.com/tool", Sources: record.NewSet("a"), Name: record.NewSet("Homepage Only")},
		{ID: "ignored", URL: "https://github.com/x/ignored", Sources: record.NewSet("noisy"), Name: record.NewSet("Ignored")},
		{ID: "not_a_tool", URL: "https://github.com/x/not-a-tool", Sources: record.NewSet("a"), Name: record.NewSet("Not A Tool")},
		{ID: "bb_tool", URL: "https://bitbucket.org/x/bb-tool", Sources: record.NewSet("a"), Name: record.NewSet("BB Tool")},
	}

	got := FilterTools(context.Background(), tools, []string{"noisy"}, []string{"not_a_tool"}, nil)

	wantIDs := []string{"bb_tool", "pypsa"}
	var gotIDs []string
	for _, tool := range got {
		gotIDs = append(gotIDs, tool.ID)
	}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Fatalf("filtered IDs mismatch (-want +got):\n%s", diff)
	}

	// The duplicate pypsa rows merged, keeping both sources.
	pypsa := got[1]
	if want := "a,b"; pypsa.Sources.Join() != want {
		t.Errorf("Sources = %q, want %q", pypsa.Sources.Join(), want)
	}
	if pypsa.Description != "power system model" {
		t.Errorf("Description = %q, want filled from duplicate", pypsa.Description)
	}
}

func TestFilterToolsKeepsMultiSourceRecords(t *testing.T) {
	// A merged record is only dropped when every source is ignored.
	tools := []record.Tool{
		{ID: "a", URL: "https://github.com/x/a", Sources: record.NewSet("noisy", "good")},
		{ID: "b", URL: "https://github.com/x/b", Sources: record.NewSet("noisy")},
	}

	got := FilterTools(context.Background(), tools, []string{"noisy"}, nil, nil)

	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("FilterTools = %+v, want only the record with a kept source", got)
	}
}

func testClassifier(t *testing.T) (*classify.Classifier, *orgmap.Mapper, *geocode.Resolver) {
	t.Helper()
	rules := config.Ruleset{
		{Name: "academic", Match: []string{"delft university of technology"}, Keyword: []string{"university"}},
		{Name: "industry", Match: []string{"siemens"}, Keyword: []string{"engineer"}},
	}
	emailDomains := config.EmailDomainRules{
		{Name: "government", Match: []config.EmailDomainRule{{Domains: []string{".gov"}, Country: "United States"}}},
	}
	academic := []classify.AcademicDomain{
		{Name: "Delft University of Technology", Country: "Netherlands", Domains: []string{"tudelft.nl"}},
	}
	orgs := []config.Org{
		{Name: "delft university of technology", Shortname: "tu delft", Variations: []string{"tudelft"}},
	}

	cache, err := geocode.LoadCache(filepath.Join(t.TempDir(), "geocode_cache.yaml"))
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	resolver := geocode.NewResolver(cache, map[string]string{"nl": "Netherlands"}, staticGeocoder{})

	return classify.New(rules, emailDomains, academic), orgmap.New(orgs), resolver
}

type staticGeocoder struct{}

func (staticGeocoder) Geocode(_ context.Context, _ string) (string, error) { return "", nil }

func TestClassifyUsers(t *testing.T) {
	classifier, mapper, resolver := testClassifier(t)

	users := []record.User{
		{Username: "zoe", Company: "TU Delft", Location: "Delft, NL"},
		{Username: "adam", EmailDomain: "tudelft.nl"},
		{Username: "pat", Company: "Some Consultancy"},
		{Username: "kim"},
	}

	got := ClassifyUsers(context.Background(), users, classifier, mapper, resolver)

	byName := map[string]record.User{}
	for _, u := range got {
		byName[u.Username] = u
	}

	// Sorted by username.
	if got[0].Username != "adam" || got[3].Username != "zoe" {
		t.Errorf("output not sorted by username: %v", []string{got[0].Username, got[1].Username, got[2].Username, got[3].Username})
	}

	zoe := byName["zoe"]
	if diff := cmp.Diff([]string{"delft university of technology"}, zoe.MappedCompany); diff != "" {
		t.Errorf("zoe MappedCompany mismatch (-want +got):\n%s", diff)
	}
	if zoe.Classification != "academic" {
		t.Errorf("zoe Classification = %q, want academic", zoe.Classification)
	}
	if zoe.Country != "Netherlands" {
		t.Errorf("zoe Country = %q, want Netherlands from geocoded location", zoe.Country)
	}

	// No company text, but the academic email domain supplies the
	// institution.
	adam := byName["adam"]
	if diff := cmp.Diff([]string{"delft university of technology"}, adam.MappedCompany); diff != "" {
		t.Errorf("adam MappedCompany mismatch (-want +got):\n%s", diff)
	}
	if adam.Classification != "academic" {
		t.Errorf("adam Classification = %q, want academic", adam.Classification)
	}
	if adam.Country != "Netherlands" {
		t.Errorf("adam Country = %q, want Netherlands from email domain", adam.Country)
	}

	pat := byName["pat"]
	if pat.Classification != classify.DefaultCompanyClassification {
		t.Errorf("pat Classification = %q, want default for unmatched company", pat.Classification)
	}
	if diff := cmp.Diff([]string{"some consultancy"}, pat.MappedCompany); diff != "" {
		t.Errorf("pat MappedCompany mismatch (-want +got):\n%s", diff)
	}

	kim := byName["kim"]
	if kim.Classification != classify.Unknown {
		t.Errorf("kim Classification = %q, want unknown", kim.Classification)
	}
	if kim.Country != "" {
		t.Errorf("kim Country = %q, want empty", kim.Country)
	}
}
