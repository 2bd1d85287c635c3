package refimport

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Mapping describes how one vendor file loads into one reference table.
// Columns maps a database column to the header name it appears under in the
// source; unmapped columns default to their own name. Headerless sources must
// omit Columns and lay the file out in the table's column order.
type Mapping struct {
	Table     string            `yaml:"table"`
	Sheet     string            `yaml:"sheet,omitempty"`
	SkipRows  int               `yaml:"skip_rows,omitempty"`
	Delimiter string            `yaml:"delimiter,omitempty"`
	HasHeader bool              `yaml:"has_header"`
	Columns   map[string]string `yaml:"columns,omitempty"`
}

// LoadMapping reads and validates a YAML mapping file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refimport: read mapping %s", path)
	}

	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "refimport: parse mapping %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, eris.Wrapf(err, "refimport: mapping %s", path)
	}
	return &m, nil
}

// Validate checks the mapping against the reference-table registry.
func (m *Mapping) Validate() error {
	spec, ok := tableSpecs[m.Table]
	if !ok {
		return eris.Errorf("unknown reference table %q (importable: %s)", m.Table, importableTables())
	}

	if !m.HasHeader && len(m.Columns) > 0 {
		return eris.New("columns mapping requires has_header: true")
	}

	for col := range m.Columns {
		if !spec.hasColumn(col) {
			return eris.Errorf("table %s has no column %q", m.Table, col)
		}
	}

	if len([]rune(m.Delimiter)) > 1 {
		return eris.Errorf("delimiter must be a single character, got %q", m.Delimiter)
	}

	return nil
}

func (m *Mapping) delimiterRune() rune {
	if m.Delimiter == "" {
		return 0
	}
	return []rune(m.Delimiter)[0]
}

// sourceColumn resolves the header name a database column appears under.
func (m *Mapping) sourceColumn(dbColumn string) string {
	if name, ok := m.Columns[dbColumn]; ok {
		return name
	}
	return dbColumn
}
