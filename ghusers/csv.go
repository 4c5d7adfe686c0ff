package ghusers

import (
	"encoding/csv"
	"fmt"
	"io"
)

var (
	interactionColumns = []string{"username", "timestamp", "interaction", "repo"}
	orgColumns         = []string{"org", "description"}
)

// WriteInteractions encodes interaction rows as CSV.
func WriteInteractions(w io.Writer, interactions []Interaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(interactionColumns); err != nil {
		return err
	}
	for _, in := range interactions {
		if err := cw.Write([]string{in.Username, in.Timestamp, in.Type, in.Repo}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadInteractions decodes interaction rows written by WriteInteractions.
func ReadInteractions(r io.Reader) ([]Interaction, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, name := range interactionColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("interactions table: missing required column %q", name)
		}
	}
	interactions := make([]Interaction, 0, len(records)-1)
	for _, rec := range records[1:] {
		interactions = append(interactions, Interaction{
			Username:  rec[cols["username"]],
			Timestamp: rec[cols["timestamp"]],
			Type:      rec[cols["interaction"]],
			Repo:      rec[cols["repo"]],
		})
	}
	return interactions, nil
}

// WriteOrgs encodes organization rows as CSV.
func WriteOrgs(w io.Writer, orgs []Org) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orgColumns); err != nil {
		return err
	}
	for _, org := range orgs {
		if err := cw.Write([]string{org.Login, org.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
