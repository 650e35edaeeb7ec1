package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Crew is one row of the crew master.
type Crew struct {
	ID       string
	Role     string
	Name     string
	GroupCLI string
}

// CrewMaster is an in-memory crew roster keyed by crew id.
type CrewMaster map[string]Crew

// LoadCrewMaster parses a crew master CSV with columns crew_id,
// crew_role, name, group_cli.
func LoadCrewMaster(r io.Reader) (CrewMaster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read crew master header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range []string{"crew_id", "crew_role", "name", "group_cli"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("crew master missing column %s", col)
		}
	}

	out := make(CrewMaster)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		c := Crew{
			ID:       cell(rec, idx["crew_id"]),
			Role:     cell(rec, idx["crew_role"]),
			Name:     cell(rec, idx["name"]),
			GroupCLI: cell(rec, idx["group_cli"]),
		}
		if c.ID == "" {
			continue
		}
		out[c.ID] = c
	}
	return out, nil
}

// LoadCrewFile loads the crew master from disk.
func LoadCrewFile(path string) (CrewMaster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCrewMaster(f)
}

// Get looks up a crew member by id.
func (m CrewMaster) Get(id string) (Crew, bool) {
	c, ok := m[id]
	return c, ok
}
