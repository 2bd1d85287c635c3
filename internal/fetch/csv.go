package fetch

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	SkipRows   int  // leading rows discarded before the header
	HasHeader  bool // first row after SkipRows is the header
	LazyQuotes bool
	TrimSpace  bool
}

// ReadCSV parses r into a Table. Reference sheets run to a few thousand rows
// at most, so the whole file is held in memory.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	tbl := &Table{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		line++

		if line <= opts.SkipRows {
			continue
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if opts.HasHeader && tbl.Header == nil {
			tbl.Header = record
			continue
		}

		tbl.Rows = append(tbl.Rows, record)
	}

	return tbl, nil
}
