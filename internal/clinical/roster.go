package clinical

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hypauto/internal/portal"
)

// RosterEntry is one pregnant patient maintained by the practice.
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PregnancyRoster answers the mandatory pregnancy question.
type PregnancyRoster struct {
	entries []RosterEntry
}

// NewPregnancyRoster builds a roster from entries.
func NewPregnancyRoster(entries []RosterEntry) *PregnancyRoster {
	return &PregnancyRoster{entries: entries}
}

// LoadPregnancyRoster reads a .json list or a CSV file with id,name columns.
// A missing file yields an empty roster.
func LoadPregnancyRoster(path string) (*PregnancyRoster, error) {
	if path == "" {
		return NewPregnancyRoster(nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPregnancyRoster(nil), nil
		}
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var entries []RosterEntry
		if err := json.NewDecoder(f).Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to parse roster: %w", err)
		}
		return NewPregnancyRoster(entries), nil
	}
	entries, err := readRosterCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	return NewPregnancyRoster(entries), nil
}

func readRosterCSV(r io.Reader) ([]RosterEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []RosterEntry
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		e := RosterEntry{ID: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			e.Name = strings.TrimSpace(rec[1])
		}
		if line == 0 && !isDigits(e.ID) {
			continue // header
		}
		out = append(out, e)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Len returns the number of entries.
func (r *PregnancyRoster) Len() int { return len(r.entries) }

// IsPregnant matches the natural id exactly, else compares folded names as
// substrings in either direction.
func (r *PregnancyRoster) IsPregnant(id, name string) bool {
	if id != "" {
		for _, e := range r.entries {
			if e.ID == id {
				return true
			}
		}
	}
	n := portal.Fold(name)
	if n == "" {
		return false
	}
	for _, e := range r.entries {
		en := portal.Fold(e.Name)
		if en == "" {
			continue
		}
		if strings.Contains(en, n) || strings.Contains(n, en) {
			return true
		}
	}
	return false
}
