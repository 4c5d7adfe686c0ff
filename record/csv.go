package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Tool table columns. Order is the on-disk contract.
var toolColumns = []string{"id", "name", "url", "source", "category", "description"}

// User details table columns, matching the collector output.
var userColumns = []string{
	"username", "company", "blog", "location", "email_domain", "bio",
	"twitter_username", "followers", "following", "repos", "readme", "orgs",
}

// Classification output columns.
var classificationColumns = []string{"username", "classification", "company", "location", "repos"}

// header maps column names to their index, failing loudly when a required
// column is missing. A half-parsed table is worse than no table.
type header map[string]int

func parseHeader(row, required []string) (header, error) {
	h := make(header, len(row))
	for i, name := range row {
		h[name] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadTools decodes a tool table from CSV. All tool columns are required.
func ReadTools(r io.Reader) ([]Tool, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tool table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tool table is empty")
	}
	h, err := parseHeader(rows[0], toolColumns)
	if err != nil {
		return nil, fmt.Errorf("tool table: %w", err)
	}

	tools := make([]Tool, 0, len(rows)-1)
	for _, row := range rows[1:] {
		tools = append(tools, Tool{
			ID:          h.get(row, "id"),
			URL:         h.get(row, "url"),
			Category:    h.get(row, "category"),
			Description: h.get(row, "description"),
			Name:        ParseSet(h.get(row, "name")),
			Sources:     ParseSet(h.get(row, "source")),
		})
	}
	return tools, nil
}

// WriteTools encodes a tool table as CSV, sorted by id.
func WriteTools(w io.Writer, tools []Tool) error {
	sorted := make([]Tool, len(tools))
	copy(sorted, tools)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cw := csv.NewWriter(w)
	if err := cw.Write(toolColumns); err != nil {
		return err
	}
	for _, t := range sorted {
		row := []string{t.ID, t.Name.Join(), t.URL, t.Sources.Join(), t.Category, t.Description}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadUsers decodes a user details table from CSV.
func ReadUsers(r io.Reader) ([]User, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read user table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("user table is empty")
	}
	h, err := parseHeader(rows[0], []string{"username"})
	if err != nil {
		return nil, fmt.Errorf("user table: %w", err)
	}

	users := make([]User, 0, len(rows)-1)
	for _, row := range rows[1:] {
		followers, _ := strconv.Atoi(h.get(row, "followers")) //nolint:errcheck // blank cell reads as zero
		following, _ := strconv.Atoi(h.get(row, "following")) //nolint:errcheck // blank cell reads as zero
		users = append(users, User{
			Username:      h.get(row, "username"),
			Company:       h.get(row, "company"),
			Blog:          h.get(row, "blog"),
			Location:      h.get(row, "location"),
			EmailDomain:   h.get(row, "email_domain"),
			Bio:           h.get(row, "bio"),
			Readme:        h.get(row, "readme"),
			TwitterHandle: h.get(row, "twitter_username"),
			Orgs:          ParseSet(h.get(row, "orgs")),
			Repos:         ParseSet(h.get(row, "repos")),
			Followers:     followers,
			Following:     following,
		})
	}
	return users, nil
}

// WriteUsers encodes a user details table as CSV, sorted by username.
// When withHeader is false the rows are suitable for appending to an
// existing table, which is how incremental collection runs persist.
func WriteUsers(w io.Writer, users []User, withHeader bool) error {
	sorted := make([]User, len(users))
	copy(sorted, users)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Username < sorted[j].Username })

	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(userColumns); err != nil {
			return err
		}
	}
	for _, u := range sorted {
		row := []string{
			u.Username, u.Company, u.Blog, u.Location, u.EmailDomain, u.Bio,
			u.TwitterHandle, strconv.Itoa(u.Followers), strconv.Itoa(u.Following),
			u.Repos.Join(), u.Readme, u.Orgs.Join(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteClassifications encodes the classified user table as CSV, sorted by
// username. MappedCompany and Country come from the classifier.
func WriteClassifications(w io.Writer, users []User) error {
	sorted := make([]User, len(users))
	copy(sorted, users)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Username < sorted[j].Username })

	cw := csv.NewWriter(w)
	if err := cw.Write(classificationColumns); err != nil {
		return err
	}
	for _, u := range sorted {
		company := NewSet(u.MappedCompany...)
		row := []string{u.Username, u.Classification, company.Join(), u.Country, u.Repos.Join()}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
