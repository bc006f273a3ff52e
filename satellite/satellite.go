// Package satellite holds the per-family rules of the catalog: revisit cycle,
// storage bucket and the band combinations that qualify for derived products.
package satellite

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultRevisitDays is the revisit cycle of the Landsat families.
const DefaultRevisitDays = 16

// Family describes one satellite family, keyed by its 3 character code.
type Family struct {
	Code        string   `yaml:"code"`
	Bucket      string   `yaml:"bucket"`
	RevisitDays int      `yaml:"revisit_days"`
	TiledTypes  []string `yaml:"tiled_types"`
}

// Qualifies reports whether an image of the given band type gets derived products.
func (f Family) Qualifies(imageType string) bool {
	for _, t := range f.TiledTypes {
		if t == imageType {
			return true
		}
	}
	return false
}

// Table maps satellite codes to families.
type Table struct {
	families    map[string]Family
	revisitDays int
}

// DefaultFamilies are the built-in Landsat 5/7/8 rules, without a revisit cycle.
func DefaultFamilies() []Family {
	return []Family{
		{Code: "LC8", Bucket: "landsat8", TiledTypes: []string{"r6g5b4"}},
		{Code: "LE7", Bucket: "landsat7", TiledTypes: []string{"r5g4b3"}},
		{Code: "LT5", Bucket: "landsat5", TiledTypes: []string{"r5g4b3"}},
	}
}

// DefaultTable returns the built-in rules with the default revisit cycle.
func DefaultTable() *Table {
	return NewTable(DefaultRevisitDays, DefaultFamilies()...)
}

// NewTable builds a table. Families without an explicit revisit cycle use revisitDays.
func NewTable(revisitDays int, families ...Family) *Table {
	if revisitDays <= 0 {
		revisitDays = DefaultRevisitDays
	}
	table := &Table{families: make(map[string]Family, len(families)), revisitDays: revisitDays}
	for _, f := range families {
		if f.RevisitDays <= 0 {
			f.RevisitDays = revisitDays
		}
		table.families[f.Code] = f
	}
	return table
}

// Lookup returns the family for a code.
func (t *Table) Lookup(code string) (Family, bool) {
	f, ok := t.families[code]
	return f, ok
}

// RevisitDays returns the revisit cycle of a family, or the table default for unknown codes.
func (t *Table) RevisitDays(code string) int {
	if f, ok := t.families[code]; ok {
		return f.RevisitDays
	}
	return t.revisitDays
}

// Qualifies reports whether (imageType, satellite) is a derived product rule.
func (t *Table) Qualifies(code, imageType string) bool {
	f, ok := t.families[code]
	return ok && f.Qualifies(imageType)
}

// Codes lists the known satellite codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.families))
	for code := range t.families {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

type rulesFile struct {
	RevisitDays int      `yaml:"revisit_days"`
	Families    []Family `yaml:"families"`
}

// Parse reads a YAML rules document.
//
//	revisit_days: 16
//	families:
//	  - code: LC8
//	    bucket: landsat8
//	    tiled_types: [r6g5b4]
func Parse(data []byte, revisitDays int) (*Table, error) {
	var rules rulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing satellite rules: %w", err)
	}
	if rules.RevisitDays > 0 {
		revisitDays = rules.RevisitDays
	}
	for _, f := range rules.Families {
		if len(f.Code) != 3 {
			return nil, fmt.Errorf("satellite rules: code %q must be 3 characters", f.Code)
		}
		if f.Bucket == "" {
			return nil, fmt.Errorf("satellite rules: family %s has no bucket", f.Code)
		}
	}
	return NewTable(revisitDays, rules.Families...), nil
}

// Load reads the rules file at path; an empty path gives the default table
// with the given revisit cycle.
func Load(path string, revisitDays int) (*Table, error) {
	if path == "" {
		defaults := DefaultTable()
		families := make([]Family, 0, len(defaults.families))
		for _, code := range defaults.Codes() {
			f := defaults.families[code]
			f.RevisitDays = 0
			families = append(families, f)
		}
		return NewTable(revisitDays, families...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading satellite rules: %w", err)
	}
	return Parse(data, revisitDays)
}
