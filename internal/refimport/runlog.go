package refimport

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/db"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// RunLog reads and writes the import_runs audit table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of an import and returns its id.
func (l *RunLog) Start(ctx context.Context, table, source string) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO import_runs (id, table_name, source, started_at)
		 VALUES ($1, $2, $3, now())`,
		id, table, source,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start import of %s", table)
	}
	return id, nil
}

// Finish marks an import as completed with the number of rows loaded.
func (l *RunLog) Finish(ctx context.Context, id string, rowsLoaded int64) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE import_runs
		 SET rows_loaded = $1, finished_at = now()
		 WHERE id = $2`,
		rowsLoaded, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: finish import %s", id)
	}
	return nil
}

// ListRecent returns the most recent import runs, newest first.
func (l *RunLog) ListRecent(ctx context.Context, limit int) ([]model.ImportRun, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, table_name, source, rows_loaded, started_at, finished_at
		 FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		if err := rows.Scan(&r.ID, &r.TableName, &r.Source, &r.RowsLoaded, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
