package model

import "time"

// ImportRun is the audit record of one reference-table bulk load. A nil
// FinishedAt marks a run that failed or is still loading.
type ImportRun struct {
	ID         string     `json:"id"`
	TableName  string     `json:"table_name"`
	Source     string     `json:"source"`
	RowsLoaded int64      `json:"rows_loaded"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
