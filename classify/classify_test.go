package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openmod-dev/esmtrack/config"
	"github.com/openmod-dev/esmtrack/record"
)

func testRules() config.Ruleset {
	return config.Ruleset{
		{Name: "academic", Match: []string{"massachusetts institute of technology", "tu delft"}, Keyword: []string{"university", "phd"}},
		{Name: "industry", Match: []string{"siemens"}, Keyword: []string{"engineer"}},
		{Name: "research", Match: []string{"fraunhofer"}, Keyword: []string{"research"}},
	}
}

func testEmailDomains() config.EmailDomainRules {
	return config.EmailDomainRules{
		{Name: "government", Match: []config.EmailDomainRule{
			{Domains: []string{".gov"}, Country: "United States"},
			{Domains: []string{".gov.uk"}, Country: "United Kingdom"},
		}},
		{Name: "academic", Match: []config.EmailDomainRule{
			{Domains: []string{".ac.uk"}, Country: "United Kingdom"},
		}},
	}
}

func testAcademic() []AcademicDomain {
	return []AcademicDomain{
		{Name: "Massachusetts Institute of Technology", Country: "United States", Domains: []string{"mit.edu"}},
		{Name: "Delft University of Technology", Country: "Netherlands", Domains: []string{"tudelft.nl"}},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name            string
		classifications map[string][]string
		priority        []string
		want            string
		wantOK          bool
	}{
		{
			name:            "single high priority result short-circuits",
			classifications: map[string][]string{"a": {"x"}, "b": {"x", "y"}},
			priority:        []string{"a", "b"},
			want:            "x",
			wantOK:          true,
		},
		{
			name:            "intersection narrows ambiguity",
			classifications: map[string][]string{"a": {"x", "y"}, "b": {"y", "z"}},
			priority:        []string{"a", "b"},
			want:            "y",
			wantOK:          true,
		},
		{
			name:            "no data",
			classifications: map[string][]string{"a": {}, "b": {}},
			priority:        []string{"a", "b"},
			wantOK:          false,
		},
		{
			name:            "empty source skipped",
			classifications: map[string][]string{"a": {"x", "y"}, "b": {}, "c": {"y"}},
			priority:        []string{"a", "b", "c"},
			want:            "y",
			wantOK:          true,
		},
		{
			name:            "lower priority fills empty running set",
			classifications: map[string][]string{"a": {}, "b": {"z"}},
			priority:        []string{"a", "b"},
			want:            "z",
			wantOK:          true,
		},
		{
			name:            "ambiguity joins sorted",
			classifications: map[string][]string{"a": {"y", "x"}},
			priority:        []string{"a", "b"},
			want:            "x,y",
			wantOK:          true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.classifications, tt.priority)
			if ok != tt.wantOK {
				t.Fatalf("Resolve ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompany(t *testing.T) {
	c := New(testRules(), testEmailDomains(), testAcademic())

	tests := []struct {
		text string
		want []string
	}{
		{"siemens", []string{"industry"}},
		{"siemens gamesa", []string{"industry"}},
		{"phd student doing research", []string{"academic", "research"}},
		{"freelancer", nil},
		{"tu delft", []string{"academic"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := c.Company(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Company(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestCompanyExactMatchWins(t *testing.T) {
	// "fraunhofer" is an exact match for research; the keyword pass that
	// would also hit must never run.
	rules := config.Ruleset{
		{Name: "industry", Keyword: []string{"fraunhofer"}},
		{Name: "research", Match: []string{"fraunhofer"}},
	}
	c := New(rules, nil, nil)

	got := c.Company("fraunhofer")
	if diff := cmp.Diff([]string{"research"}, got); diff != "" {
		t.Errorf("Company mismatch (-want +got):\n%s", diff)
	}
}

func TestEmailDomain(t *testing.T) {
	c := New(testRules(), testEmailDomains(), testAcademic())

	tests := []struct {
		name    string
		domain  string
		extract Extract
		want    []string
	}{
		{"academic suffix wins", "eecs.mit.edu", Category, []string{"academic"}},
		{"academic country", "eecs.mit.edu", Country, []string{"United States"}},
		{"configured suffix", "energy.gov", Category, []string{"government"}},
		{"configured country", "energy.gov", Country, []string{"United States"}},
		{"longer suffix", "beis.gov.uk", Country, []string{"United Kingdom"}},
		{"no match", "example.com", Category, nil},
		{"empty", "", Category, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.EmailDomain(tt.domain, tt.extract)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("EmailDomain(%q) mismatch (-want +got):\n%s", tt.domain, diff)
			}
		})
	}
}

func TestUser(t *testing.T) {
	c := New(testRules(), testEmailDomains(), testAcademic())

	tests := []struct {
		name string
		user record.User
		want string
	}{
		{
			name: "company in match list",
			user: record.User{MappedCompany: []string{"massachusetts institute of technology"}},
			want: "academic",
		},
		{
			name: "company with no rule hit defaults to professional",
			user: record.User{MappedCompany: []string{"some consultancy"}},
			want: "professional",
		},
		{
			name: "no signals at all",
			user: record.User{},
			want: "unknown",
		},
		{
			name: "email domain outranks company",
			user: record.User{EmailDomain: "energy.gov", MappedCompany: []string{"siemens"}},
			want: "government",
		},
		{
			name: "bio keyword",
			user: record.User{Bio: "PhD candidate"},
			want: "academic",
		},
		{
			name: "blog domain",
			user: record.User{Blog: "https://www.tudelft.nl/en"},
			want: "academic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.User(tt.user)
			if got != tt.want {
				t.Errorf("User = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserCountry(t *testing.T) {
	c := New(testRules(), testEmailDomains(), testAcademic())

	tests := []struct {
		name string
		user record.User
		want string
	}{
		{"academic email", record.User{EmailDomain: "tudelft.nl"}, "Netherlands"},
		{"government email", record.User{EmailDomain: "energy.gov"}, "United States"},
		{"blog fallback", record.User{Blog: "https://www.tudelft.nl/en"}, "Netherlands"},
		{"nothing", record.User{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.UserCountry(tt.user)
			if got != tt.want {
				t.Errorf("UserCountry = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAcademicDomains(t *testing.T) {
	data := []byte(`[{"name": "MIT", "country": "United States", "domains": ["mit.edu"]}]`)
	got, err := ParseAcademicDomains(data)
	if err != nil {
		t.Fatalf("ParseAcademicDomains: %v", err)
	}
	want := []AcademicDomain{{Name: "MIT", Country: "United States", Domains: []string{"mit.edu"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
