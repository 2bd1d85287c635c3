package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Decimal columns are
// stored as TEXT so persisted values round-trip exactly; range predicates
// CAST to REAL for numeric comparison.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB

	mu       sync.Mutex
	jobLocks map[int64]*sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		sqliteQueries: sqliteQueries{q: sqldb},
		db:            sqldb,
		jobLocks:      make(map[int64]*sync.Mutex),
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	filename   TEXT NOT NULL UNIQUE,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS nomenclature_ranges (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	nomenclature TEXT NOT NULL,
	range_min    TEXT NOT NULL,
	range_max    TEXT NOT NULL,
	unit         TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS master_standards (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	nomenclature_range_id INTEGER NOT NULL REFERENCES nomenclature_ranges(id),
	nomenclature          TEXT NOT NULL,
	manufacturer          TEXT NOT NULL DEFAULT '',
	identification_no     TEXT NOT NULL DEFAULT '',
	traceability_lab      TEXT NOT NULL DEFAULT '',
	certificate_no        TEXT NOT NULL DEFAULT '',
	valid_until           DATETIME NOT NULL,
	uncertainty_value     TEXT NOT NULL DEFAULT '0',
	uncertainty_unit      TEXT NOT NULL DEFAULT '',
	resolution            TEXT NOT NULL DEFAULT '0',
	accuracy              TEXT NOT NULL DEFAULT '0',
	range_min             TEXT NOT NULL,
	range_max             TEXT NOT NULL,
	unit                  TEXT NOT NULL DEFAULT '',
	is_active             BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS manufacturer_specs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	make         TEXT NOT NULL,
	model        TEXT NOT NULL,
	capacity     TEXT NOT NULL,
	torque_20    TEXT NOT NULL,
	torque_60    TEXT NOT NULL,
	torque_100   TEXT NOT NULL,
	pressure_20  TEXT NOT NULL,
	pressure_60  TEXT NOT NULL,
	pressure_100 TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_manufacturer_specs_make_model ON manufacturer_specs(make, model) WHERE is_active;

CREATE TABLE IF NOT EXISTS gauge_resolutions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	resolution TEXT NOT NULL UNIQUE,
	is_active  BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS pressure_uncertainty_bands (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	pressure_min        TEXT NOT NULL,
	pressure_max        TEXT NOT NULL,
	uncertainty_percent TEXT NOT NULL,
	is_active           BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS standard_uncertainty_points (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	indicated_torque    TEXT NOT NULL,
	uncertainty_percent TEXT NOT NULL,
	is_active           BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS max_error_bands (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	torque_min        TEXT NOT NULL,
	torque_max        TEXT NOT NULL,
	max_error_percent TEXT NOT NULL,
	is_active         BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS cmc_bands (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	torque_min  TEXT NOT NULL,
	torque_max  TEXT NOT NULL,
	cmc_percent TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS t_distribution (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	degrees_of_freedom INTEGER NOT NULL,
	alpha              TEXT NOT NULL,
	factor             TEXT NOT NULL,
	is_active          BOOLEAN NOT NULL DEFAULT 1,
	UNIQUE (degrees_of_freedom, alpha)
);

CREATE TABLE IF NOT EXISTS import_runs (
	id          TEXT PRIMARY KEY,
	table_name  TEXT NOT NULL,
	source      TEXT NOT NULL,
	rows_loaded INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS inward_equipment (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	make       TEXT NOT NULL,
	model      TEXT NOT NULL,
	serial_no  TEXT NOT NULL DEFAULT '',
	capacity   TEXT NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS calibration_jobs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	inward_eqp_id    INTEGER NOT NULL REFERENCES inward_equipment(id),
	calibration_date DATETIME NOT NULL,
	gauge_resolution TEXT NOT NULL DEFAULT '0',
	device_class     TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'open',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_calibration_jobs_status ON calibration_jobs(status);

CREATE TABLE IF NOT EXISTS repeatability_records (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id                INTEGER NOT NULL REFERENCES calibration_jobs(id) ON DELETE CASCADE,
	step_percent          INTEGER NOT NULL,
	set_pressure          TEXT NOT NULL,
	set_torque            TEXT NOT NULL,
	readings              TEXT NOT NULL DEFAULT '[]',
	mean_reading          TEXT NOT NULL DEFAULT '0',
	corrected_standard    TEXT NOT NULL DEFAULT '0',
	corrected_mean        TEXT NOT NULL DEFAULT '0',
	deviation_percent     TEXT NOT NULL DEFAULT '0',
	repeatability_error   TEXT NOT NULL DEFAULT '0',
	avg_measurement_error TEXT NOT NULL DEFAULT '0',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (job_id, step_percent)
);

CREATE TABLE IF NOT EXISTS variation_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        INTEGER NOT NULL REFERENCES calibration_jobs(id) ON DELETE CASCADE,
	family        TEXT NOT NULL,
	target_torque TEXT NOT NULL,
	error_value   TEXT NOT NULL,
	recorded_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_variation_records_latest ON variation_records(job_id, family, recorded_at DESC);

CREATE TABLE IF NOT EXISTS standard_snapshots (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id             INTEGER NOT NULL REFERENCES calibration_jobs(id) ON DELETE CASCADE,
	selection_order    INTEGER NOT NULL,
	master_standard_id INTEGER NOT NULL,
	nomenclature       TEXT NOT NULL,
	range_min          TEXT NOT NULL,
	range_max          TEXT NOT NULL,
	unit               TEXT NOT NULL DEFAULT '',
	manufacturer       TEXT NOT NULL DEFAULT '',
	identification_no  TEXT NOT NULL DEFAULT '',
	traceability_lab   TEXT NOT NULL DEFAULT '',
	certificate_no     TEXT NOT NULL DEFAULT '',
	valid_until        DATETIME NOT NULL,
	uncertainty_value  TEXT NOT NULL DEFAULT '0',
	uncertainty_unit   TEXT NOT NULL DEFAULT '',
	resolution         TEXT NOT NULL DEFAULT '0',
	accuracy           TEXT NOT NULL DEFAULT '0',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (job_id, selection_order)
);

CREATE TABLE IF NOT EXISTS uncertainty_budgets (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id                       INTEGER NOT NULL REFERENCES calibration_jobs(id) ON DELETE CASCADE,
	step_percent                 INTEGER NOT NULL,
	set_torque                   TEXT NOT NULL,
	set_pressure                 TEXT NOT NULL,
	corrected_mean               TEXT NOT NULL,
	w_re                         TEXT NOT NULL DEFAULT '0',
	w_r                          TEXT NOT NULL DEFAULT '0',
	w_rep                        TEXT NOT NULL DEFAULT '0',
	w_od                         TEXT NOT NULL DEFAULT '0',
	w_int                        TEXT NOT NULL DEFAULT '0',
	w_l                          TEXT NOT NULL DEFAULT '0',
	delta_s_un                   TEXT NOT NULL DEFAULT '0',
	delta_p                      TEXT NOT NULL DEFAULT '0',
	w_md                         TEXT NOT NULL DEFAULT '0',
	combined_uncertainty         TEXT NOT NULL DEFAULT '0',
	effective_dof                TEXT,
	coverage_factor              TEXT NOT NULL DEFAULT '2',
	expanded_uncertainty_percent TEXT NOT NULL DEFAULT '0',
	expanded_uncertainty_torque  TEXT NOT NULL DEFAULT '0',
	mean_measurement_error       TEXT NOT NULL DEFAULT '0',
	max_device_error             TEXT NOT NULL DEFAULT '0',
	cmc                          TEXT NOT NULL DEFAULT '0',
	cmc_of_reading_percent       TEXT NOT NULL DEFAULT '0',
	final_value                  TEXT NOT NULL DEFAULT '0',
	computed_at                  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (job_id, step_percent)
);

CREATE TABLE IF NOT EXISTS lookup_fallback_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       INTEGER NOT NULL REFERENCES calibration_jobs(id) ON DELETE CASCADE,
	step_percent INTEGER,
	table_name   TEXT NOT NULL,
	lookup_key   TEXT NOT NULL,
	default_used TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// DB exposes the underlying handle for bulk loaders and test fixtures, the
// sqlite counterpart of PostgresStore.Pool.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// jobLock returns the mutex serializing recomputes of one job.
func (s *SQLiteStore) jobLock(jobID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.jobLocks[jobID]
	if !ok {
		m = &sync.Mutex{}
		s.jobLocks[jobID] = m
	}
	return m
}

// InJobTx runs fn inside a transaction while holding the job's in-process
// lock. SQLite has no advisory locks; the mutex serializes same-job callers
// and busy_timeout covers other processes.
func (s *SQLiteStore) InJobTx(ctx context.Context, jobID int64, fn func(q Queries) error) error {
	l := s.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin job tx")
	}
	defer tx.Rollback()

	if err := fn(sqliteQueries{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit job tx")
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteQueries implements Queries against a DB handle or a transaction.
type sqliteQueries struct {
	q dbtx
}

func (s sqliteQueries) CreateInwardEquipment(ctx context.Context, eq model.InwardEquipment) (*model.InwardEquipment, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO inward_equipment (make, model, serial_no, capacity, unit, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		eq.Make, eq.Model, eq.SerialNo, eq.Capacity, eq.Unit, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert inward equipment")
	}
	eq.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: inward equipment id")
	}
	eq.CreatedAt = now
	return &eq, nil
}

func (s sqliteQueries) GetInwardEquipment(ctx context.Context, id int64) (*model.InwardEquipment, error) {
	var eq model.InwardEquipment
	err := s.q.QueryRowContext(ctx,
		`SELECT id, make, model, serial_no, capacity, unit, created_at FROM inward_equipment WHERE id = ?`,
		id,
	).Scan(&eq.ID, &eq.Make, &eq.Model, &eq.SerialNo, &eq.Capacity, &eq.Unit, &eq.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, calerr.NewNotFound("inward_equipment", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get inward equipment %d", id)
	}
	return &eq, nil
}

func (s sqliteQueries) CreateJob(ctx context.Context, job model.CalibrationJob) (*model.CalibrationJob, error) {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = model.JobStatusOpen
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO calibration_jobs (inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.InwardEqpID, job.CalibrationDate, job.GaugeResolution, job.DeviceClass, string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	job.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: job id")
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return &job, nil
}

func (s sqliteQueries) GetJob(ctx context.Context, jobID int64) (*model.CalibrationJob, error) {
	var j model.CalibrationJob
	err := s.q.QueryRowContext(ctx,
		`SELECT id, inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at
		 FROM calibration_jobs WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.InwardEqpID, &j.CalibrationDate, &j.GaugeResolution, &j.DeviceClass, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, calerr.NewNotFound("calibration_job", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %d", jobID)
	}
	return &j, nil
}

func (s sqliteQueries) ListJobs(ctx context.Context, filter JobFilter) ([]model.CalibrationJob, error) {
	query := `SELECT id, inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at FROM calibration_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.CalibrationJob
	for rows.Next() {
		var j model.CalibrationJob
		if err := rows.Scan(&j.ID, &j.InwardEqpID, &j.CalibrationDate, &j.GaugeResolution,
			&j.DeviceClass, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s sqliteQueries) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE calibration_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %d", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return calerr.NewNotFound("calibration_job", jobID)
	}
	return nil
}

func (s sqliteQueries) UpsertRepeatabilityRecord(ctx context.Context, rec model.RepeatabilityRecord) (*model.RepeatabilityRecord, error) {
	readingsJSON, err := json.Marshal(rec.Readings)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal readings")
	}
	now := time.Now().UTC()

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO repeatability_records
		 (job_id, step_percent, set_pressure, set_torque, readings, mean_reading, corrected_standard, corrected_mean, deviation_percent, repeatability_error, avg_measurement_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, step_percent) DO UPDATE SET
		   set_pressure = excluded.set_pressure, set_torque = excluded.set_torque,
		   readings = excluded.readings, mean_reading = excluded.mean_reading,
		   corrected_standard = excluded.corrected_standard, corrected_mean = excluded.corrected_mean,
		   deviation_percent = excluded.deviation_percent, repeatability_error = excluded.repeatability_error,
		   avg_measurement_error = excluded.avg_measurement_error`,
		rec.JobID, rec.StepPercent, rec.SetPressure, rec.SetTorque, string(readingsJSON),
		rec.MeanReading, rec.CorrectedStandard, rec.CorrectedMean, rec.DeviationPercent,
		rec.RepeatabilityError, rec.AvgMeasurementError, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert repeatability record job %d step %d", rec.JobID, rec.StepPercent)
	}
	// LastInsertId is stale on the conflict-update path; read the key back.
	err = s.q.QueryRowContext(ctx,
		`SELECT id, created_at FROM repeatability_records WHERE job_id = ? AND step_percent = ?`,
		rec.JobID, rec.StepPercent,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read back repeatability record id")
	}
	return &rec, nil
}

func (s sqliteQueries) ListRepeatabilityRecords(ctx context.Context, jobID int64) ([]model.RepeatabilityRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, job_id, step_percent, set_pressure, set_torque, readings, mean_reading, corrected_standard, corrected_mean, deviation_percent, repeatability_error, avg_measurement_error, created_at
		 FROM repeatability_records WHERE job_id = ? ORDER BY step_percent ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list repeatability records")
	}
	defer rows.Close()

	var recs []model.RepeatabilityRecord
	for rows.Next() {
		var r model.RepeatabilityRecord
		var readingsJSON string
		if err := rows.Scan(&r.ID, &r.JobID, &r.StepPercent, &r.SetPressure, &r.SetTorque,
			&readingsJSON, &r.MeanReading, &r.CorrectedStandard, &r.CorrectedMean,
			&r.DeviationPercent, &r.RepeatabilityError, &r.AvgMeasurementError, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan repeatability record")
		}
		if err := json.Unmarshal([]byte(readingsJSON), &r.Readings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal readings")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list repeatability iterate")
}

func (s sqliteQueries) InsertVariationRecord(ctx context.Context, rec model.VariationRecord) (*model.VariationRecord, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO variation_records (job_id, family, target_torque, error_value, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.JobID, string(rec.Family), rec.TargetTorque, rec.ErrorValue, rec.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert variation record job %d", rec.JobID)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: variation record id")
	}
	return &rec, nil
}

func (s sqliteQueries) LatestVariationRecords(ctx context.Context, jobID int64) ([]model.VariationRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT v.id, v.job_id, v.family, v.target_torque, v.error_value, v.recorded_at
		 FROM variation_records v
		 WHERE v.job_id = ? AND v.id = (
		   SELECT v2.id FROM variation_records v2
		   WHERE v2.job_id = v.job_id AND v2.family = v.family
		   ORDER BY v2.recorded_at DESC, v2.id DESC LIMIT 1
		 )
		 ORDER BY v.family`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest variation records")
	}
	defer rows.Close()

	var recs []model.VariationRecord
	for rows.Next() {
		var r model.VariationRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.Family, &r.TargetTorque, &r.ErrorValue, &r.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variation record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: latest variation iterate")
}

func (s sqliteQueries) GetManufacturerSpec(ctx context.Context, mk, mdl string) (*model.ManufacturerSpec, error) {
	var spec model.ManufacturerSpec
	err := s.q.QueryRowContext(ctx,
		`SELECT id, make, model, capacity, torque_20, torque_60, torque_100, pressure_20, pressure_60, pressure_100, is_active
		 FROM manufacturer_specs WHERE make = ? AND model = ? AND is_active
		 ORDER BY id DESC LIMIT 1`,
		mk, mdl,
	).Scan(&spec.ID, &spec.Make, &spec.Model, &spec.Capacity, &spec.Torque20, &spec.Torque60,
		&spec.Torque100, &spec.Pressure20, &spec.Pressure60, &spec.Pressure100, &spec.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get manufacturer spec %s %s", mk, mdl)
	}
	return &spec, nil
}

func (s sqliteQueries) ListNomenclatureRanges(ctx context.Context) ([]model.NomenclatureRange, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, nomenclature, range_min, range_max, unit, is_active
		 FROM nomenclature_ranges WHERE is_active
		 ORDER BY CAST(range_max AS REAL) ASC, id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nomenclature ranges")
	}
	defer rows.Close()

	var ranges []model.NomenclatureRange
	for rows.Next() {
		var r model.NomenclatureRange
		if err := rows.Scan(&r.ID, &r.Nomenclature, &r.RangeMin, &r.RangeMax, &r.Unit, &r.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan nomenclature range")
		}
		ranges = append(ranges, r)
	}
	return ranges, eris.Wrap(rows.Err(), "sqlite: list nomenclature iterate")
}

func (s sqliteQueries) ListMasterStandards(ctx context.Context, rangeID int64, validOn time.Time) ([]model.MasterStandard, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, nomenclature_range_id, nomenclature, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, range_min, range_max, unit, is_active
		 FROM master_standards
		 WHERE nomenclature_range_id = ? AND is_active AND valid_until >= ?
		 ORDER BY CAST(range_max AS REAL) ASC, id ASC`,
		rangeID, validOn,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list master standards")
	}
	defer rows.Close()

	var standards []model.MasterStandard
	for rows.Next() {
		var m model.MasterStandard
		if err := rows.Scan(&m.ID, &m.NomenclatureRangeID, &m.Nomenclature, &m.Manufacturer,
			&m.IdentificationNo, &m.TraceabilityLab, &m.CertificateNo, &m.ValidUntil,
			&m.UncertaintyValue, &m.UncertaintyUnit, &m.Resolution, &m.Accuracy,
			&m.RangeMin, &m.RangeMax, &m.Unit, &m.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan master standard")
		}
		standards = append(standards, m)
	}
	return standards, eris.Wrap(rows.Err(), "sqlite: list master standards iterate")
}

func (s sqliteQueries) LookupGaugeResolution(ctx context.Context, resolution decimal.Decimal) (*model.GaugeResolution, error) {
	var g model.GaugeResolution
	err := s.q.QueryRowContext(ctx,
		`SELECT id, resolution, is_active FROM gauge_resolutions
		 WHERE CAST(resolution AS REAL) = CAST(? AS REAL) AND is_active LIMIT 1`,
		resolution,
	).Scan(&g.ID, &g.Resolution, &g.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup gauge resolution")
	}
	return &g, nil
}

func (s sqliteQueries) FindPressureBand(ctx context.Context, pressure decimal.Decimal) (*model.PressureUncertaintyBand, error) {
	var b model.PressureUncertaintyBand
	err := s.q.QueryRowContext(ctx,
		`SELECT id, pressure_min, pressure_max, uncertainty_percent, is_active
		 FROM pressure_uncertainty_bands
		 WHERE is_active AND CAST(pressure_min AS REAL) <= CAST(? AS REAL) AND CAST(? AS REAL) <= CAST(pressure_max AS REAL)
		 ORDER BY CAST(pressure_max AS REAL) ASC, id ASC LIMIT 1`,
		pressure, pressure,
	).Scan(&b.ID, &b.PressureMin, &b.PressureMax, &b.UncertaintyPercent, &b.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find pressure band")
	}
	return &b, nil
}

func (s sqliteQueries) FindStandardUncertaintyPoint(ctx context.Context, torque decimal.Decimal) (*model.StandardUncertaintyPoint, error) {
	var pt model.StandardUncertaintyPoint
	err := s.q.QueryRowContext(ctx,
		`SELECT id, indicated_torque, uncertainty_percent, is_active
		 FROM standard_uncertainty_points
		 WHERE is_active AND CAST(indicated_torque AS REAL) >= CAST(? AS REAL)
		 ORDER BY CAST(indicated_torque AS REAL) ASC, id ASC LIMIT 1`,
		torque,
	).Scan(&pt.ID, &pt.IndicatedTorque, &pt.UncertaintyPercent, &pt.IsActive)
	if err == sql.ErrNoRows {
		err = s.q.QueryRowContext(ctx,
			`SELECT id, indicated_torque, uncertainty_percent, is_active
			 FROM standard_uncertainty_points
			 WHERE is_active
			 ORDER BY CAST(indicated_torque AS REAL) DESC, id ASC LIMIT 1`,
		).Scan(&pt.ID, &pt.IndicatedTorque, &pt.UncertaintyPercent, &pt.IsActive)
		if err == sql.ErrNoRows {
			return nil, nil
		}
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find standard uncertainty point")
	}
	return &pt, nil
}

func (s sqliteQueries) FindMaxErrorBand(ctx context.Context, torque decimal.Decimal) (*model.MaxErrorBand, error) {
	var b model.MaxErrorBand
	err := s.q.QueryRowContext(ctx,
		`SELECT id, torque_min, torque_max, max_error_percent, is_active
		 FROM max_error_bands
		 WHERE is_active AND CAST(torque_min AS REAL) <= CAST(? AS REAL) AND CAST(? AS REAL) <= CAST(torque_max AS REAL)
		 ORDER BY CAST(torque_max AS REAL) ASC, id ASC LIMIT 1`,
		torque, torque,
	).Scan(&b.ID, &b.TorqueMin, &b.TorqueMax, &b.MaxErrorPercent, &b.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find max error band")
	}
	return &b, nil
}

func (s sqliteQueries) FindCMCBand(ctx context.Context, torque decimal.Decimal) (*model.CMCBand, error) {
	var b model.CMCBand
	err := s.q.QueryRowContext(ctx,
		`SELECT id, torque_min, torque_max, cmc_percent, is_active
		 FROM cmc_bands
		 WHERE is_active AND CAST(torque_min AS REAL) <= CAST(? AS REAL) AND CAST(? AS REAL) < CAST(torque_max AS REAL)
		 ORDER BY CAST(torque_max AS REAL) ASC, id ASC LIMIT 1`,
		torque, torque,
	).Scan(&b.ID, &b.TorqueMin, &b.TorqueMax, &b.CMCPercent, &b.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find cmc band")
	}
	return &b, nil
}

func (s sqliteQueries) GetTFactor(ctx context.Context, dof int64, alpha decimal.Decimal) (*model.TDistributionRow, error) {
	var t model.TDistributionRow
	err := s.q.QueryRowContext(ctx,
		`SELECT id, degrees_of_freedom, alpha, factor, is_active
		 FROM t_distribution
		 WHERE degrees_of_freedom = ? AND CAST(alpha AS REAL) = CAST(? AS REAL) AND is_active LIMIT 1`,
		dof, alpha,
	).Scan(&t.ID, &t.DegreesOfFreedom, &t.Alpha, &t.Factor, &t.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get t factor")
	}
	return &t, nil
}

func (s sqliteQueries) DeleteStandardSnapshots(ctx context.Context, jobID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM standard_snapshots WHERE job_id = ?`, jobID)
	return eris.Wrapf(err, "sqlite: delete snapshots job %d", jobID)
}

func (s sqliteQueries) InsertStandardSnapshot(ctx context.Context, snap model.StandardSnapshot) (*model.StandardSnapshot, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO standard_snapshots
		 (job_id, selection_order, master_standard_id, nomenclature, range_min, range_max, unit, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.JobID, snap.SelectionOrder, snap.MasterStandardID, snap.Nomenclature,
		snap.RangeMin, snap.RangeMax, snap.Unit, snap.Manufacturer, snap.IdentificationNo,
		snap.TraceabilityLab, snap.CertificateNo, snap.ValidUntil,
		snap.UncertaintyValue, snap.UncertaintyUnit, snap.Resolution, snap.Accuracy, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert snapshot job %d order %d", snap.JobID, snap.SelectionOrder)
	}
	snap.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot id")
	}
	snap.CreatedAt = now
	return &snap, nil
}

func (s sqliteQueries) ListStandardSnapshots(ctx context.Context, jobID int64) ([]model.StandardSnapshot, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, job_id, selection_order, master_standard_id, nomenclature, range_min, range_max, unit, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, created_at
		 FROM standard_snapshots WHERE job_id = ? ORDER BY selection_order ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []model.StandardSnapshot
	for rows.Next() {
		var sn model.StandardSnapshot
		if err := rows.Scan(&sn.ID, &sn.JobID, &sn.SelectionOrder, &sn.MasterStandardID,
			&sn.Nomenclature, &sn.RangeMin, &sn.RangeMax, &sn.Unit, &sn.Manufacturer,
			&sn.IdentificationNo, &sn.TraceabilityLab, &sn.CertificateNo, &sn.ValidUntil,
			&sn.UncertaintyValue, &sn.UncertaintyUnit, &sn.Resolution, &sn.Accuracy, &sn.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		snaps = append(snaps, sn)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

func (s sqliteQueries) UpsertUncertaintyBudget(ctx context.Context, b model.UncertaintyBudget) error {
	var dof any
	if b.EffectiveDOF != nil {
		dof = *b.EffectiveDOF
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO uncertainty_budgets
		 (job_id, step_percent, set_torque, set_pressure, corrected_mean,
		  w_re, w_r, w_rep, w_od, w_int, w_l, delta_s_un, delta_p, w_md,
		  combined_uncertainty, effective_dof, coverage_factor,
		  expanded_uncertainty_percent, expanded_uncertainty_torque,
		  mean_measurement_error, max_device_error, cmc, cmc_of_reading_percent, final_value, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, step_percent) DO UPDATE SET
		   set_torque = excluded.set_torque, set_pressure = excluded.set_pressure,
		   corrected_mean = excluded.corrected_mean,
		   w_re = excluded.w_re, w_r = excluded.w_r, w_rep = excluded.w_rep,
		   w_od = excluded.w_od, w_int = excluded.w_int, w_l = excluded.w_l,
		   delta_s_un = excluded.delta_s_un, delta_p = excluded.delta_p, w_md = excluded.w_md,
		   combined_uncertainty = excluded.combined_uncertainty,
		   effective_dof = excluded.effective_dof, coverage_factor = excluded.coverage_factor,
		   expanded_uncertainty_percent = excluded.expanded_uncertainty_percent,
		   expanded_uncertainty_torque = excluded.expanded_uncertainty_torque,
		   mean_measurement_error = excluded.mean_measurement_error,
		   max_device_error = excluded.max_device_error,
		   cmc = excluded.cmc, cmc_of_reading_percent = excluded.cmc_of_reading_percent,
		   final_value = excluded.final_value, computed_at = excluded.computed_at`,
		b.JobID, b.StepPercent, b.SetTorque, b.SetPressure, b.CorrectedMean,
		b.WRe, b.WR, b.WRep, b.WOd, b.WInt, b.WL, b.DeltaSUn, b.DeltaP, b.WMd,
		b.CombinedUncertainty, dof, b.CoverageFactor,
		b.ExpandedUncertaintyPercent, b.ExpandedUncertaintyTorque,
		b.MeanMeasurementError, b.MaxDeviceError, b.CMC, b.CMCOfReadingPercent,
		b.FinalValue, b.ComputedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert budget job %d step %d", b.JobID, b.StepPercent)
}

func (s sqliteQueries) ListUncertaintyBudgets(ctx context.Context, jobID int64) ([]model.UncertaintyBudget, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, job_id, step_percent, set_torque, set_pressure, corrected_mean, w_re, w_r, w_rep, w_od, w_int, w_l, delta_s_un, delta_p, w_md, combined_uncertainty, effective_dof, coverage_factor, expanded_uncertainty_percent, expanded_uncertainty_torque, mean_measurement_error, max_device_error, cmc, cmc_of_reading_percent, final_value, computed_at
		 FROM uncertainty_budgets WHERE job_id = ? ORDER BY step_percent ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list budgets")
	}
	defer rows.Close()

	var budgets []model.UncertaintyBudget
	for rows.Next() {
		var b model.UncertaintyBudget
		var dof decimal.NullDecimal
		if err := rows.Scan(&b.ID, &b.JobID, &b.StepPercent, &b.SetTorque, &b.SetPressure,
			&b.CorrectedMean, &b.WRe, &b.WR, &b.WRep, &b.WOd, &b.WInt, &b.WL,
			&b.DeltaSUn, &b.DeltaP, &b.WMd, &b.CombinedUncertainty, &dof,
			&b.CoverageFactor, &b.ExpandedUncertaintyPercent, &b.ExpandedUncertaintyTorque,
			&b.MeanMeasurementError, &b.MaxDeviceError, &b.CMC, &b.CMCOfReadingPercent,
			&b.FinalValue, &b.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan budget")
		}
		if dof.Valid {
			d := dof.Decimal
			b.EffectiveDOF = &d
		}
		budgets = append(budgets, b)
	}
	return budgets, eris.Wrap(rows.Err(), "sqlite: list budgets iterate")
}

func (s sqliteQueries) InsertFallbackEvent(ctx context.Context, ev model.FallbackEvent) error {
	var step any
	if ev.StepPercent != nil {
		step = *ev.StepPercent
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO lookup_fallback_events (job_id, step_percent, table_name, lookup_key, default_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.JobID, step, ev.TableName, ev.LookupKey, ev.DefaultUsed, ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert fallback event job %d", ev.JobID)
}

func (s sqliteQueries) ListFallbackEvents(ctx context.Context, jobID int64) ([]model.FallbackEvent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, job_id, step_percent, table_name, lookup_key, default_used, created_at
		 FROM lookup_fallback_events WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fallback events")
	}
	defer rows.Close()

	var events []model.FallbackEvent
	for rows.Next() {
		var e model.FallbackEvent
		var step sql.NullInt64
		if err := rows.Scan(&e.ID, &e.JobID, &step, &e.TableName, &e.LookupKey, &e.DefaultUsed, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fallback event")
		}
		if step.Valid {
			sp := int(step.Int64)
			e.StepPercent = &sp
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list fallback iterate")
}

func (s sqliteQueries) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM calibration_jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count jobs by status")
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job count")
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count jobs iterate")
}

func (s sqliteQueries) CountSnapshottedJobs(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(DISTINCT job_id) FROM standard_snapshots`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count snapshotted jobs")
}

func (s sqliteQueries) CountBudgetedJobs(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(DISTINCT job_id) FROM uncertainty_budgets`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count budgeted jobs")
}

func (s sqliteQueries) CountFallbackEvents(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookup_fallback_events WHERE created_at >= ?`, since).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count fallback events")
}

func (s sqliteQueries) CountFallbackEventsByTable(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT table_name, COUNT(*) FROM lookup_fallback_events WHERE created_at >= ? GROUP BY table_name`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count fallback events by table")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var table string
		var n int
		if err := rows.Scan(&table, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fallback count")
		}
		counts[table] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count fallback iterate")
}
