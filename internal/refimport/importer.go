// Package refimport bulk-loads the published reference tables the selector
// and budget engine read: nomenclature ranges, master standards, manufacturer
// specs, and the uncertainty lookup bands. Each run replaces the target table
// in one transaction and leaves an import_runs audit row.
package refimport

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/db"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/fetch"
)

// Importer loads vendor reference files into Postgres.
type Importer struct {
	pool     db.Pool
	resolver *fetch.Resolver
	runs     *RunLog
	log      *zap.Logger
}

// New creates an Importer with a default fetch.Resolver.
func New(pool db.Pool) *Importer {
	return &Importer{
		pool:     pool,
		resolver: fetch.NewResolver(),
		runs:     NewRunLog(pool),
		log:      zap.L().With(zap.String("component", "refimport")),
	}
}

// WithResolver swaps the source resolver, used by tests and by callers with
// credentialed FTP fetchers.
func (im *Importer) WithResolver(r *fetch.Resolver) *Importer {
	im.resolver = r
	return im
}

// RunResult reports one completed import.
type RunResult struct {
	RunID      string `json:"run_id"`
	Table      string `json:"table"`
	Source     string `json:"source"`
	RowsLoaded int64  `json:"rows_loaded"`
}

// Run imports the source file described by the mapping at mappingPath.
// The source may be a local path, an http(s) URL, or an ftp URL; tempDir holds
// downloads that need a local file.
func (im *Importer) Run(ctx context.Context, mappingPath, source, tempDir string) (*RunResult, error) {
	m, err := LoadMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	spec := tableSpecs[m.Table]

	tbl, err := im.read(ctx, m, source, tempDir)
	if err != nil {
		return nil, err
	}

	rows, err := convertRows(spec, m, tbl)
	if err != nil {
		return nil, eris.Wrapf(err, "refimport: %s from %s", m.Table, source)
	}
	if len(rows) == 0 {
		// Replacing a reference table with nothing would strand every open
		// job, so an empty source is always an operator error.
		return nil, eris.Errorf("refimport: source %s produced no rows for %s", source, m.Table)
	}

	runID, err := im.runs.Start(ctx, m.Table, source)
	if err != nil {
		return nil, err
	}

	n, err := im.replace(ctx, spec, rows)
	if err != nil {
		im.log.Error("import failed, audit row left unfinished",
			zap.String("run_id", runID),
			zap.String("table", m.Table),
			zap.Error(err),
		)
		return nil, err
	}

	if err := im.runs.Finish(ctx, runID, n); err != nil {
		return nil, err
	}

	im.log.Info("reference table imported",
		zap.String("run_id", runID),
		zap.String("table", m.Table),
		zap.String("source", source),
		zap.Int64("rows", n),
	)

	return &RunResult{RunID: runID, Table: m.Table, Source: source, RowsLoaded: n}, nil
}

// read fetches and parses the source into a Table. XLSX needs a seekable
// local file; CSV streams straight off the fetcher.
func (im *Importer) read(ctx context.Context, m *Mapping, source, tempDir string) (*fetch.Table, error) {
	if isXLSX(source) {
		path, err := im.resolver.Localize(ctx, source, tempDir)
		if err != nil {
			return nil, err
		}
		return fetch.ReadXLSX(path, fetch.XLSXOptions{
			SheetName: m.Sheet,
			SkipRows:  m.SkipRows,
			HasHeader: m.HasHeader,
		})
	}

	rc, err := im.resolver.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	return fetch.ReadCSV(rc, fetch.CSVOptions{
		Delimiter: m.delimiterRune(),
		SkipRows:  m.SkipRows,
		HasHeader: m.HasHeader,
		TrimSpace: true,
	})
}

func isXLSX(source string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSuffix(source, "/")), ".xlsx")
}

// replace swaps the table contents in one transaction: delete everything,
// COPY the new rows.
func (im *Importer) replace(ctx context.Context, spec tableSpec, rows [][]any) (int64, error) {
	tx, err := im.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "refimport: begin tx for %s", spec.name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{spec.name}.Sanitize()); err != nil {
		return 0, eris.Wrapf(err, "refimport: clear %s", spec.name)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{spec.name}, spec.columnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "refimport: COPY into %s", spec.name)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "refimport: commit %s", spec.name)
	}

	return n, nil
}
