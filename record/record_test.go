package record

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"PyPSA", "pypsa"},
		{"  Open Energy Modelling  ", "open_energy_modelling"},
		{"Calliope-Project", "calliope_project"},
		{"switch.model", "switch_model"},
		{"a - b", "a_b"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeID(tt.name)
			if got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestNormalizeIDIdempotent(t *testing.T) {
	inputs := []string{"PyPSA", "Open Energy  Modelling", "a-b.c d"}
	for _, in := range inputs {
		once := NormalizeID(in)
		twice := NormalizeID(once)
		if once != twice {
			t.Errorf("NormalizeID not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://GitHub.com/PyPSA/PyPSA/", "https://github.com/pypsa/pypsa"},
		{"https://github.com/pypsa/pypsa", "https://github.com/pypsa/pypsa"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := NormalizeURL(tt.url)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSetPreservesInsertionOrder(t *testing.T) {
	var s Set
	s.Add("b")
	s.Add("a")
	s.Add("b")
	s.Add("c")

	want := []string{"b", "a", "c"}
	if diff := cmp.Diff(want, s.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestSetJoinSorted(t *testing.T) {
	s := NewSet("b", "a", "c")
	if got, want := s.Join(), "a,b,c"; got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}

func TestParseSet(t *testing.T) {
	s := ParseSet("a,b,a")
	want := []string{"a", "b"}
	if diff := cmp.Diff(want, s.Values()); diff != "" {
		t.Errorf("ParseSet mismatch (-want +got):\n%s", diff)
	}
	if ParseSet("").Len() != 0 {
		t.Error("ParseSet(\"\") should be empty")
	}
}

func TestToolMergeFirstWins(t *testing.T) {
	base := Tool{
		ID:      "pypsa",
		URL:     "https://github.com/pypsa/pypsa",
		Name:    NewSet("PyPSA"),
		Sources: NewSet("a"),
	}
	other := Tool{
		ID:          "pypsa",
		URL:         "https://github.com/pypsa/pypsa",
		Description: "power system model",
		Category:    "power-flow",
		Name:        NewSet("pypsa"),
		Sources:     NewSet("b"),
	}

	base.Merge(other)

	if base.Description != "power system model" {
		t.Errorf("Description = %q, want filled from other", base.Description)
	}
	if base.Category != "power-flow" {
		t.Errorf("Category = %q, want filled from other", base.Category)
	}
	if got, want := base.Sources.Join(), "a,b"; got != want {
		t.Errorf("Sources = %q, want %q", got, want)
	}
	if got, want := base.Name.Join(), "PyPSA,pypsa"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}

	// A second merge must not overwrite the already-filled fields.
	base.Merge(Tool{Description: "something else"})
	if base.Description != "power system model" {
		t.Errorf("Description overwritten on second merge: %q", base.Description)
	}
}
