// Package config loads the static classification and mapping configuration
// read once at process start. Malformed configuration fails the run
// immediately; there is no partial-success mode for a batch pass.
package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Category is one taxonomy entry with its exact-match and keyword lists.
type Category struct {
	Name    string
	Match   []string
	Keyword []string
}

// Ruleset is the classification taxonomy in declaration order. Order
// matters: the classifier's exact-match pass stops at the first category
// that matches, so Ruleset preserves the YAML mapping order.
type Ruleset []Category

// UnmarshalYAML decodes a YAML mapping of category name to match/keyword
// lists, preserving declaration order.
func (r *Ruleset) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("classification rules must be a mapping, got %s", node.Tag)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var body struct {
			Match   []string `yaml:"match"`
			Keyword []string `yaml:"keyword"`
		}
		if err := node.Content[i+1].Decode(&body); err != nil {
			return fmt.Errorf("category %q: %w", node.Content[i].Value, err)
		}
		*r = append(*r, Category{Name: node.Content[i].Value, Match: body.Match, Keyword: body.Keyword})
	}
	return nil
}

// Org maps a canonical organization name to the strings used to recognize
// it in free text.
type Org struct {
	Name       string   `yaml:"name"`
	Shortname  string   `yaml:"shortname"`
	Variations []string `yaml:"variations"`
}

// EmailDomainRule associates a set of domain suffixes with a country.
type EmailDomainRule struct {
	Domains []string `yaml:"email_domain"`
	Country string   `yaml:"country"`
}

// EmailCategory is one taxonomy entry of the email-domain mapping.
type EmailCategory struct {
	Name  string
	Match []EmailDomainRule
}

// EmailDomainRules is the email-domain mapping in declaration order.
type EmailDomainRules []EmailCategory

// UnmarshalYAML decodes a YAML mapping of category name to match rules,
// preserving declaration order.
func (r *EmailDomainRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("email domain mapping must be a mapping, got %s", node.Tag)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var body struct {
			Match []EmailDomainRule `yaml:"match"`
		}
		if err := node.Content[i+1].Decode(&body); err != nil {
			return fmt.Errorf("email category %q: %w", node.Content[i].Value, err)
		}
		*r = append(*r, EmailCategory{Name: node.Content[i].Value, Match: body.Match})
	}
	return nil
}

// Config is the full static configuration for a run. Immutable once loaded.
type Config struct {
	Rules          Ruleset
	Orgs           []Org
	EmailDomains   EmailDomainRules
	CountryMapping map[string]string
	Exclusions     []string
}

// Load reads all configuration files from dir. The exclusions file is
// optional; everything else is required.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	if err := loadYAML(filepath.Join(dir, "classification.yaml"), &cfg.Rules); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(dir, "org_mapping.yaml"), &cfg.Orgs); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(dir, "email_domains.yaml"), &cfg.EmailDomains); err != nil {
		return nil, err
	}
	if err := loadYAML(filepath.Join(dir, "country_mapping.yaml"), &cfg.CountryMapping); err != nil {
		return nil, err
	}

	exclusions, err := LoadExclusions(filepath.Join(dir, "exclusions.csv"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	cfg.Exclusions = exclusions
	return cfg, nil
}

func loadYAML(path string, into any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied config
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadExclusions reads the manually-assessed exclusion list, a CSV with an
// id column.
func LoadExclusions(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-supplied config
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse exclusions: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idCol := -1
	for i, name := range rows[0] {
		if name == "id" {
			idCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("exclusions: missing required column %q", "id")
	}
	var ids []string
	for _, row := range rows[1:] {
		if idCol < len(row) && row[idCol] != "" {
			ids = append(ids, row[idCol])
		}
	}
	return ids, nil
}
