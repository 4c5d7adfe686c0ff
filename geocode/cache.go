package geocode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cache is the persistent location-to-country map. It is read once at the
// start of a run, mutated only by the single executing pipeline, and
// flushed once at the end. A nil country is an explicit negative entry:
// the location was unresolvable and is never retried on later runs.
type Cache struct {
	path    string
	entries map[string]*string
	dirty   bool
}

// LoadCache reads the cache file, returning an empty cache when the file
// does not exist yet.
func LoadCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: map[string]*string{}}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read geocode cache: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("parse geocode cache: %w", err)
	}
	if c.entries == nil {
		c.entries = map[string]*string{}
	}
	return c, nil
}

// Lookup returns the cached country for a location. ok is true for both
// positive entries and explicit nulls; country is nil for the latter.
func (c *Cache) Lookup(location string) (country *string, ok bool) {
	country, ok = c.entries[location]
	return country, ok
}

// Set records a resolution. A nil country marks the location unresolvable.
func (c *Cache) Set(location string, country *string) {
	c.entries[location] = country
	c.dirty = true
}

// Len returns the number of cached locations.
func (c *Cache) Len() int { return len(c.entries) }

// Flush writes the cache back to disk when it changed.
func (c *Cache) Flush() error {
	if !c.dirty {
		return nil
	}
	data, err := yaml.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encode geocode cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil { //nolint:gosec // cache file, not a secret
		return fmt.Errorf("write geocode cache: %w", err)
	}
	c.dirty = false
	return nil
}
