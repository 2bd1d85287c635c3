package refimport

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/fetch"
)

type colKind int

const (
	colText colKind = iota
	colNumeric
	colInt
	colDate
	colBool
)

// column describes one loadable column of a reference table. Required columns
// reject empty cells; optional ones fall back to def.
type column struct {
	name     string
	kind     colKind
	required bool
	def      any
}

type tableSpec struct {
	name    string
	columns []column
}

func (s tableSpec) hasColumn(name string) bool {
	for _, c := range s.columns {
		if c.name == name {
			return true
		}
	}
	return false
}

func (s tableSpec) columnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

func req(name string, kind colKind) column {
	return column{name: name, kind: kind, required: true}
}

func opt(name string, kind colKind, def any) column {
	return column{name: name, kind: kind, def: def}
}

// tableSpecs registers every reference table a vendor file may load.
// t_distribution is deliberately absent: it is computed, not imported.
var tableSpecs = map[string]tableSpec{
	"nomenclature_ranges": {
		name: "nomenclature_ranges",
		columns: []column{
			req("nomenclature", colText),
			req("range_min", colNumeric),
			req("range_max", colNumeric),
			opt("unit", colText, ""),
			opt("is_active", colBool, true),
		},
	},
	"master_standards": {
		name: "master_standards",
		columns: []column{
			req("nomenclature_range_id", colInt),
			req("nomenclature", colText),
			opt("manufacturer", colText, ""),
			opt("identification_no", colText, ""),
			opt("traceability_lab", colText, ""),
			opt("certificate_no", colText, ""),
			req("valid_until", colDate),
			opt("uncertainty_value", colNumeric, float64(0)),
			opt("uncertainty_unit", colText, ""),
			opt("resolution", colNumeric, float64(0)),
			opt("accuracy", colNumeric, float64(0)),
			req("range_min", colNumeric),
			req("range_max", colNumeric),
			opt("unit", colText, ""),
			opt("is_active", colBool, true),
		},
	},
	"manufacturer_specs": {
		name: "manufacturer_specs",
		columns: []column{
			req("make", colText),
			req("model", colText),
			req("capacity", colNumeric),
			req("torque_20", colNumeric),
			req("torque_60", colNumeric),
			req("torque_100", colNumeric),
			req("pressure_20", colNumeric),
			req("pressure_60", colNumeric),
			req("pressure_100", colNumeric),
			opt("is_active", colBool, true),
		},
	},
	"gauge_resolutions": {
		name: "gauge_resolutions",
		columns: []column{
			req("resolution", colNumeric),
			opt("is_active", colBool, true),
		},
	},
	"pressure_uncertainty_bands": {
		name: "pressure_uncertainty_bands",
		columns: []column{
			req("pressure_min", colNumeric),
			req("pressure_max", colNumeric),
			req("uncertainty_percent", colNumeric),
			opt("is_active", colBool, true),
		},
	},
	"standard_uncertainty_points": {
		name: "standard_uncertainty_points",
		columns: []column{
			req("indicated_torque", colNumeric),
			req("uncertainty_percent", colNumeric),
			opt("is_active", colBool, true),
		},
	},
	"max_error_bands": {
		name: "max_error_bands",
		columns: []column{
			req("torque_min", colNumeric),
			req("torque_max", colNumeric),
			req("max_error_percent", colNumeric),
			opt("is_active", colBool, true),
		},
	},
	"cmc_bands": {
		name: "cmc_bands",
		columns: []column{
			req("torque_min", colNumeric),
			req("torque_max", colNumeric),
			req("cmc_percent", colNumeric),
			opt("is_active", colBool, true),
		},
	},
}

func importableTables() string {
	names := make([]string, 0, len(tableSpecs))
	for name := range tableSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// convertRows turns parsed source rows into typed rows in the table's column
// order. A cell that fails to parse aborts the whole import; a reference
// table must never load with silently defaulted values.
func convertRows(spec tableSpec, m *Mapping, tbl *fetch.Table) ([][]any, error) {
	positions, err := columnPositions(spec, m, tbl)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(tbl.Rows))
	for i, record := range tbl.Rows {
		rowNo := i + 1
		out := make([]any, len(spec.columns))
		for j, col := range spec.columns {
			raw := ""
			if pos := positions[j]; pos >= 0 && pos < len(record) {
				raw = strings.TrimSpace(record[pos])
			}

			if raw == "" {
				if col.required {
					return nil, eris.Errorf("row %d: %s is empty", rowNo, col.name)
				}
				out[j] = col.def
				continue
			}

			v, err := parseCell(raw, col.kind)
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: %s", rowNo, col.name)
			}
			out[j] = v
		}
		rows = append(rows, out)
	}

	return rows, nil
}

// columnPositions maps each spec column to its index in a source record.
// Headered sources match by name, headerless ones by position.
func columnPositions(spec tableSpec, m *Mapping, tbl *fetch.Table) ([]int, error) {
	positions := make([]int, len(spec.columns))

	if !m.HasHeader {
		for j := range spec.columns {
			positions[j] = j
		}
		return positions, nil
	}

	idx := tbl.HeaderIndex()
	for j, col := range spec.columns {
		source := m.sourceColumn(col.name)
		pos, ok := idx[strings.ToLower(strings.TrimSpace(source))]
		if !ok {
			if col.required {
				return nil, eris.Errorf("column %q (for %s) not found in source header", source, col.name)
			}
			pos = -1
		}
		positions[j] = pos
	}
	return positions, nil
}

func parseCell(raw string, kind colKind) (any, error) {
	switch kind {
	case colText:
		return strings.ToValidUTF8(raw, ""), nil
	case colNumeric:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, eris.Errorf("not a number: %q", raw)
		}
		return d.InexactFloat64(), nil
	case colInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, eris.Errorf("not an integer: %q", raw)
		}
		return v, nil
	case colDate:
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, eris.Errorf("not an ISO date (YYYY-MM-DD): %q", raw)
		}
		return t, nil
	case colBool:
		return parseBool(raw)
	default:
		return nil, eris.Errorf("unhandled column kind %d", kind)
	}
}

func parseBool(raw string) (any, error) {
	switch strings.ToLower(raw) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return nil, eris.Errorf("not a boolean: %q", raw)
	}
}
