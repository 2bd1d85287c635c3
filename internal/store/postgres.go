package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/db"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgQueries
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetJob = `SELECT id, inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at FROM calibration_jobs WHERE id = $1`

	sqlListRepeatability = `SELECT id, job_id, step_percent, set_pressure, set_torque, readings, mean_reading, corrected_standard, corrected_mean, deviation_percent, repeatability_error, avg_measurement_error, created_at FROM repeatability_records WHERE job_id = $1 ORDER BY step_percent ASC`

	sqlListSnapshots = `SELECT id, job_id, selection_order, master_standard_id, nomenclature, range_min, range_max, unit, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, created_at FROM standard_snapshots WHERE job_id = $1 ORDER BY selection_order ASC`

	sqlListBudgets = `SELECT id, job_id, step_percent, set_torque, set_pressure, corrected_mean, w_re, w_r, w_rep, w_od, w_int, w_l, delta_s_un, delta_p, w_md, combined_uncertainty, effective_dof, coverage_factor, expanded_uncertainty_percent, expanded_uncertainty_torque, mean_measurement_error, max_device_error, cmc, cmc_of_reading_percent, final_value, computed_at FROM uncertainty_budgets WHERE job_id = $1 ORDER BY step_percent ASC`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":            sqlGetJob,
	"list_repeatability": sqlListRepeatability,
	"list_snapshots":     sqlListSnapshots,
	"list_budgets":       sqlListBudgets,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pgQueries: pgQueries{q: pool}, pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct bulk access (e.g., reference-table imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// jobLockKey derives the advisory lock key serializing recomputes of one job.
func jobLockKey(jobID int64) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "calibration_job:%d", jobID)
	return int64(h.Sum64())
}

// InJobTx runs fn inside a transaction holding the job's advisory lock. The
// lock is transaction-scoped, so commit or rollback releases it.
func (s *PostgresStore) InJobTx(ctx context.Context, jobID int64, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin job tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", jobLockKey(jobID)); err != nil {
		return eris.Wrapf(err, "postgres: lock job %d", jobID)
	}
	if err := fn(pgQueries{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit job tx")
}

// pgQueries implements Queries against a pool or a transaction.
type pgQueries struct {
	q db.Querier
}

func (p pgQueries) CreateInwardEquipment(ctx context.Context, eq model.InwardEquipment) (*model.InwardEquipment, error) {
	now := time.Now().UTC()
	err := p.q.QueryRow(ctx,
		`INSERT INTO inward_equipment (make, model, serial_no, capacity, unit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		eq.Make, eq.Model, eq.SerialNo, eq.Capacity, eq.Unit, now,
	).Scan(&eq.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert inward equipment")
	}
	eq.CreatedAt = now
	return &eq, nil
}

func (p pgQueries) GetInwardEquipment(ctx context.Context, id int64) (*model.InwardEquipment, error) {
	var eq model.InwardEquipment
	err := p.q.QueryRow(ctx,
		`SELECT id, make, model, serial_no, capacity, unit, created_at FROM inward_equipment WHERE id = $1`,
		id,
	).Scan(&eq.ID, &eq.Make, &eq.Model, &eq.SerialNo, &eq.Capacity, &eq.Unit, &eq.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, calerr.NewNotFound("inward_equipment", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get inward equipment %d", id)
	}
	return &eq, nil
}

func (p pgQueries) CreateJob(ctx context.Context, job model.CalibrationJob) (*model.CalibrationJob, error) {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = model.JobStatusOpen
	}
	err := p.q.QueryRow(ctx,
		`INSERT INTO calibration_jobs (inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		job.InwardEqpID, job.CalibrationDate, job.GaugeResolution, job.DeviceClass, string(job.Status), now, now,
	).Scan(&job.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return &job, nil
}

func (p pgQueries) GetJob(ctx context.Context, jobID int64) (*model.CalibrationJob, error) {
	var j model.CalibrationJob
	err := p.q.QueryRow(ctx, sqlGetJob, jobID).Scan(
		&j.ID, &j.InwardEqpID, &j.CalibrationDate, &j.GaugeResolution,
		&j.DeviceClass, &j.Status, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, calerr.NewNotFound("calibration_job", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %d", jobID)
	}
	return &j, nil
}

func (p pgQueries) ListJobs(ctx context.Context, filter JobFilter) ([]model.CalibrationJob, error) {
	query := `SELECT id, inward_eqp_id, calibration_date, gauge_resolution, device_class, status, created_at, updated_at FROM calibration_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.CalibrationJob
	for rows.Next() {
		var j model.CalibrationJob
		if err := rows.Scan(&j.ID, &j.InwardEqpID, &j.CalibrationDate, &j.GaugeResolution,
			&j.DeviceClass, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (p pgQueries) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE calibration_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return calerr.NewNotFound("calibration_job", jobID)
	}
	return nil
}

func (p pgQueries) UpsertRepeatabilityRecord(ctx context.Context, rec model.RepeatabilityRecord) (*model.RepeatabilityRecord, error) {
	readingsJSON, err := json.Marshal(rec.Readings)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal readings")
	}
	now := time.Now().UTC()

	err = p.q.QueryRow(ctx,
		`INSERT INTO repeatability_records
		 (job_id, step_percent, set_pressure, set_torque, readings, mean_reading, corrected_standard, corrected_mean, deviation_percent, repeatability_error, avg_measurement_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (job_id, step_percent) DO UPDATE SET
		   set_pressure = EXCLUDED.set_pressure, set_torque = EXCLUDED.set_torque,
		   readings = EXCLUDED.readings, mean_reading = EXCLUDED.mean_reading,
		   corrected_standard = EXCLUDED.corrected_standard, corrected_mean = EXCLUDED.corrected_mean,
		   deviation_percent = EXCLUDED.deviation_percent, repeatability_error = EXCLUDED.repeatability_error,
		   avg_measurement_error = EXCLUDED.avg_measurement_error
		 RETURNING id, created_at`,
		rec.JobID, rec.StepPercent, rec.SetPressure, rec.SetTorque, readingsJSON,
		rec.MeanReading, rec.CorrectedStandard, rec.CorrectedMean, rec.DeviationPercent,
		rec.RepeatabilityError, rec.AvgMeasurementError, now,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert repeatability record job %d step %d", rec.JobID, rec.StepPercent)
	}
	return &rec, nil
}

func (p pgQueries) ListRepeatabilityRecords(ctx context.Context, jobID int64) ([]model.RepeatabilityRecord, error) {
	rows, err := p.q.Query(ctx, sqlListRepeatability, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list repeatability records")
	}
	defer rows.Close()

	var recs []model.RepeatabilityRecord
	for rows.Next() {
		var r model.RepeatabilityRecord
		var readingsJSON []byte
		if err := rows.Scan(&r.ID, &r.JobID, &r.StepPercent, &r.SetPressure, &r.SetTorque,
			&readingsJSON, &r.MeanReading, &r.CorrectedStandard, &r.CorrectedMean,
			&r.DeviationPercent, &r.RepeatabilityError, &r.AvgMeasurementError, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan repeatability record")
		}
		if err := json.Unmarshal(readingsJSON, &r.Readings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal readings")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list repeatability iterate")
}

func (p pgQueries) InsertVariationRecord(ctx context.Context, rec model.VariationRecord) (*model.VariationRecord, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	err := p.q.QueryRow(ctx,
		`INSERT INTO variation_records (job_id, family, target_torque, error_value, recorded_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rec.JobID, string(rec.Family), rec.TargetTorque, rec.ErrorValue, rec.RecordedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert variation record job %d", rec.JobID)
	}
	return &rec, nil
}

func (p pgQueries) LatestVariationRecords(ctx context.Context, jobID int64) ([]model.VariationRecord, error) {
	rows, err := p.q.Query(ctx,
		`SELECT DISTINCT ON (family) id, job_id, family, target_torque, error_value, recorded_at
		 FROM variation_records WHERE job_id = $1
		 ORDER BY family, recorded_at DESC, id DESC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest variation records")
	}
	defer rows.Close()

	var recs []model.VariationRecord
	for rows.Next() {
		var r model.VariationRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.Family, &r.TargetTorque, &r.ErrorValue, &r.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variation record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: latest variation iterate")
}

func (p pgQueries) GetManufacturerSpec(ctx context.Context, mk, mdl string) (*model.ManufacturerSpec, error) {
	var s model.ManufacturerSpec
	err := p.q.QueryRow(ctx,
		`SELECT id, make, model, capacity, torque_20, torque_60, torque_100, pressure_20, pressure_60, pressure_100, is_active
		 FROM manufacturer_specs WHERE make = $1 AND model = $2 AND is_active
		 ORDER BY id DESC LIMIT 1`,
		mk, mdl,
	).Scan(&s.ID, &s.Make, &s.Model, &s.Capacity, &s.Torque20, &s.Torque60, &s.Torque100,
		&s.Pressure20, &s.Pressure60, &s.Pressure100, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get manufacturer spec %s %s", mk, mdl)
	}
	return &s, nil
}

func (p pgQueries) ListNomenclatureRanges(ctx context.Context) ([]model.NomenclatureRange, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, nomenclature, range_min, range_max, unit, is_active
		 FROM nomenclature_ranges WHERE is_active
		 ORDER BY range_max ASC, id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list nomenclature ranges")
	}
	defer rows.Close()

	var ranges []model.NomenclatureRange
	for rows.Next() {
		var r model.NomenclatureRange
		if err := rows.Scan(&r.ID, &r.Nomenclature, &r.RangeMin, &r.RangeMax, &r.Unit, &r.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan nomenclature range")
		}
		ranges = append(ranges, r)
	}
	return ranges, eris.Wrap(rows.Err(), "postgres: list nomenclature iterate")
}

func (p pgQueries) ListMasterStandards(ctx context.Context, rangeID int64, validOn time.Time) ([]model.MasterStandard, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, nomenclature_range_id, nomenclature, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, range_min, range_max, unit, is_active
		 FROM master_standards
		 WHERE nomenclature_range_id = $1 AND is_active AND valid_until >= $2
		 ORDER BY range_max ASC, id ASC`,
		rangeID, validOn,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list master standards")
	}
	defer rows.Close()

	var standards []model.MasterStandard
	for rows.Next() {
		var m model.MasterStandard
		if err := rows.Scan(&m.ID, &m.NomenclatureRangeID, &m.Nomenclature, &m.Manufacturer,
			&m.IdentificationNo, &m.TraceabilityLab, &m.CertificateNo, &m.ValidUntil,
			&m.UncertaintyValue, &m.UncertaintyUnit, &m.Resolution, &m.Accuracy,
			&m.RangeMin, &m.RangeMax, &m.Unit, &m.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan master standard")
		}
		standards = append(standards, m)
	}
	return standards, eris.Wrap(rows.Err(), "postgres: list master standards iterate")
}

func (p pgQueries) LookupGaugeResolution(ctx context.Context, resolution decimal.Decimal) (*model.GaugeResolution, error) {
	var g model.GaugeResolution
	err := p.q.QueryRow(ctx,
		`SELECT id, resolution, is_active FROM gauge_resolutions WHERE resolution = $1 AND is_active LIMIT 1`,
		resolution,
	).Scan(&g.ID, &g.Resolution, &g.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup gauge resolution")
	}
	return &g, nil
}

func (p pgQueries) FindPressureBand(ctx context.Context, pressure decimal.Decimal) (*model.PressureUncertaintyBand, error) {
	var b model.PressureUncertaintyBand
	err := p.q.QueryRow(ctx,
		`SELECT id, pressure_min, pressure_max, uncertainty_percent, is_active
		 FROM pressure_uncertainty_bands
		 WHERE is_active AND pressure_min <= $1 AND $1 <= pressure_max
		 ORDER BY pressure_max ASC, id ASC LIMIT 1`,
		pressure,
	).Scan(&b.ID, &b.PressureMin, &b.PressureMax, &b.UncertaintyPercent, &b.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find pressure band")
	}
	return &b, nil
}

func (p pgQueries) FindStandardUncertaintyPoint(ctx context.Context, torque decimal.Decimal) (*model.StandardUncertaintyPoint, error) {
	var pt model.StandardUncertaintyPoint
	err := p.q.QueryRow(ctx,
		`SELECT id, indicated_torque, uncertainty_percent, is_active
		 FROM standard_uncertainty_points
		 WHERE is_active AND indicated_torque >= $1
		 ORDER BY indicated_torque ASC, id ASC LIMIT 1`,
		torque,
	).Scan(&pt.ID, &pt.IndicatedTorque, &pt.UncertaintyPercent, &pt.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		// No point at or above the step torque: fall back to the largest available.
		err = p.q.QueryRow(ctx,
			`SELECT id, indicated_torque, uncertainty_percent, is_active
			 FROM standard_uncertainty_points
			 WHERE is_active
			 ORDER BY indicated_torque DESC, id ASC LIMIT 1`,
		).Scan(&pt.ID, &pt.IndicatedTorque, &pt.UncertaintyPercent, &pt.IsActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find standard uncertainty point")
	}
	return &pt, nil
}

func (p pgQueries) FindMaxErrorBand(ctx context.Context, torque decimal.Decimal) (*model.MaxErrorBand, error) {
	var b model.MaxErrorBand
	err := p.q.QueryRow(ctx,
		`SELECT id, torque_min, torque_max, max_error_percent, is_active
		 FROM max_error_bands
		 WHERE is_active AND torque_min <= $1 AND $1 <= torque_max
		 ORDER BY torque_max ASC, id ASC LIMIT 1`,
		torque,
	).Scan(&b.ID, &b.TorqueMin, &b.TorqueMax, &b.MaxErrorPercent, &b.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find max error band")
	}
	return &b, nil
}

func (p pgQueries) FindCMCBand(ctx context.Context, torque decimal.Decimal) (*model.CMCBand, error) {
	var b model.CMCBand
	err := p.q.QueryRow(ctx,
		`SELECT id, torque_min, torque_max, cmc_percent, is_active
		 FROM cmc_bands
		 WHERE is_active AND torque_min <= $1 AND $1 < torque_max
		 ORDER BY torque_max ASC, id ASC LIMIT 1`,
		torque,
	).Scan(&b.ID, &b.TorqueMin, &b.TorqueMax, &b.CMCPercent, &b.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find cmc band")
	}
	return &b, nil
}

func (p pgQueries) GetTFactor(ctx context.Context, dof int64, alpha decimal.Decimal) (*model.TDistributionRow, error) {
	var t model.TDistributionRow
	err := p.q.QueryRow(ctx,
		`SELECT id, degrees_of_freedom, alpha, factor, is_active
		 FROM t_distribution
		 WHERE degrees_of_freedom = $1 AND alpha = $2 AND is_active LIMIT 1`,
		dof, alpha,
	).Scan(&t.ID, &t.DegreesOfFreedom, &t.Alpha, &t.Factor, &t.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get t factor")
	}
	return &t, nil
}

func (p pgQueries) DeleteStandardSnapshots(ctx context.Context, jobID int64) error {
	_, err := p.q.Exec(ctx, `DELETE FROM standard_snapshots WHERE job_id = $1`, jobID)
	return eris.Wrapf(err, "postgres: delete snapshots job %d", jobID)
}

func (p pgQueries) InsertStandardSnapshot(ctx context.Context, snap model.StandardSnapshot) (*model.StandardSnapshot, error) {
	now := time.Now().UTC()
	err := p.q.QueryRow(ctx,
		`INSERT INTO standard_snapshots
		 (job_id, selection_order, master_standard_id, nomenclature, range_min, range_max, unit, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		snap.JobID, snap.SelectionOrder, snap.MasterStandardID, snap.Nomenclature,
		snap.RangeMin, snap.RangeMax, snap.Unit, snap.Manufacturer, snap.IdentificationNo,
		snap.TraceabilityLab, snap.CertificateNo, snap.ValidUntil,
		snap.UncertaintyValue, snap.UncertaintyUnit, snap.Resolution, snap.Accuracy, now,
	).Scan(&snap.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert snapshot job %d order %d", snap.JobID, snap.SelectionOrder)
	}
	snap.CreatedAt = now
	return &snap, nil
}

func (p pgQueries) ListStandardSnapshots(ctx context.Context, jobID int64) ([]model.StandardSnapshot, error) {
	rows, err := p.q.Query(ctx, sqlListSnapshots, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []model.StandardSnapshot
	for rows.Next() {
		var s model.StandardSnapshot
		if err := rows.Scan(&s.ID, &s.JobID, &s.SelectionOrder, &s.MasterStandardID,
			&s.Nomenclature, &s.RangeMin, &s.RangeMax, &s.Unit, &s.Manufacturer,
			&s.IdentificationNo, &s.TraceabilityLab, &s.CertificateNo, &s.ValidUntil,
			&s.UncertaintyValue, &s.UncertaintyUnit, &s.Resolution, &s.Accuracy, &s.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snaps = append(snaps, s)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func (p pgQueries) UpsertUncertaintyBudget(ctx context.Context, b model.UncertaintyBudget) error {
	var dof any
	if b.EffectiveDOF != nil {
		dof = *b.EffectiveDOF
	}
	_, err := p.q.Exec(ctx,
		`INSERT INTO uncertainty_budgets
		 (job_id, step_percent, set_torque, set_pressure, corrected_mean,
		  w_re, w_r, w_rep, w_od, w_int, w_l, delta_s_un, delta_p, w_md,
		  combined_uncertainty, effective_dof, coverage_factor,
		  expanded_uncertainty_percent, expanded_uncertainty_torque,
		  mean_measurement_error, max_device_error, cmc, cmc_of_reading_percent, final_value, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		 ON CONFLICT (job_id, step_percent) DO UPDATE SET
		   set_torque = EXCLUDED.set_torque, set_pressure = EXCLUDED.set_pressure,
		   corrected_mean = EXCLUDED.corrected_mean,
		   w_re = EXCLUDED.w_re, w_r = EXCLUDED.w_r, w_rep = EXCLUDED.w_rep,
		   w_od = EXCLUDED.w_od, w_int = EXCLUDED.w_int, w_l = EXCLUDED.w_l,
		   delta_s_un = EXCLUDED.delta_s_un, delta_p = EXCLUDED.delta_p, w_md = EXCLUDED.w_md,
		   combined_uncertainty = EXCLUDED.combined_uncertainty,
		   effective_dof = EXCLUDED.effective_dof, coverage_factor = EXCLUDED.coverage_factor,
		   expanded_uncertainty_percent = EXCLUDED.expanded_uncertainty_percent,
		   expanded_uncertainty_torque = EXCLUDED.expanded_uncertainty_torque,
		   mean_measurement_error = EXCLUDED.mean_measurement_error,
		   max_device_error = EXCLUDED.max_device_error,
		   cmc = EXCLUDED.cmc, cmc_of_reading_percent = EXCLUDED.cmc_of_reading_percent,
		   final_value = EXCLUDED.final_value, computed_at = EXCLUDED.computed_at`,
		b.JobID, b.StepPercent, b.SetTorque, b.SetPressure, b.CorrectedMean,
		b.WRe, b.WR, b.WRep, b.WOd, b.WInt, b.WL, b.DeltaSUn, b.DeltaP, b.WMd,
		b.CombinedUncertainty, dof, b.CoverageFactor,
		b.ExpandedUncertaintyPercent, b.ExpandedUncertaintyTorque,
		b.MeanMeasurementError, b.MaxDeviceError, b.CMC, b.CMCOfReadingPercent,
		b.FinalValue, b.ComputedAt,
	)
	return eris.Wrapf(err, "postgres: upsert budget job %d step %d", b.JobID, b.StepPercent)
}

func (p pgQueries) ListUncertaintyBudgets(ctx context.Context, jobID int64) ([]model.UncertaintyBudget, error) {
	rows, err := p.q.Query(ctx, sqlListBudgets, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list budgets")
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
			return nil, eris.Wrap(err, "postgres: scan budget")
		}
		if dof.Valid {
			d := dof.Decimal
			b.EffectiveDOF = &d
		}
		budgets = append(budgets, b)
	}
	return budgets, eris.Wrap(rows.Err(), "postgres: list budgets iterate")
}

func (p pgQueries) InsertFallbackEvent(ctx context.Context, ev model.FallbackEvent) error {
	var step any
	if ev.StepPercent != nil {
		step = *ev.StepPercent
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := p.q.Exec(ctx,
		`INSERT INTO lookup_fallback_events (job_id, step_percent, table_name, lookup_key, default_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.JobID, step, ev.TableName, ev.LookupKey, ev.DefaultUsed, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert fallback event job %d", ev.JobID)
}

func (p pgQueries) ListFallbackEvents(ctx context.Context, jobID int64) ([]model.FallbackEvent, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, job_id, step_percent, table_name, lookup_key, default_used, created_at
		 FROM lookup_fallback_events WHERE job_id = $1 ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fallback events")
	}
	defer rows.Close()

	var events []model.FallbackEvent
	for rows.Next() {
		var e model.FallbackEvent
		var step *int
		if err := rows.Scan(&e.ID, &e.JobID, &step, &e.TableName, &e.LookupKey, &e.DefaultUsed, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fallback event")
		}
		e.StepPercent = step
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list fallback iterate")
}

func (p pgQueries) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := p.q.Query(ctx, `SELECT status, COUNT(*) FROM calibration_jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count jobs by status")
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job count")
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count jobs iterate")
}

func (p pgQueries) CountSnapshottedJobs(ctx context.Context) (int, error) {
	var n int
	err := p.q.QueryRow(ctx, `SELECT COUNT(DISTINCT job_id) FROM standard_snapshots`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count snapshotted jobs")
}

func (p pgQueries) CountBudgetedJobs(ctx context.Context) (int, error) {
	var n int
	err := p.q.QueryRow(ctx, `SELECT COUNT(DISTINCT job_id) FROM uncertainty_budgets`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count budgeted jobs")
}

func (p pgQueries) CountFallbackEvents(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM lookup_fallback_events WHERE created_at >= $1`, since).Scan(&n)
	return n, eris.Wrap(err, "postgres: count fallback events")
}

func (p pgQueries) CountFallbackEventsByTable(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := p.q.Query(ctx,
		`SELECT table_name, COUNT(*) FROM lookup_fallback_events WHERE created_at >= $1 GROUP BY table_name`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count fallback events by table")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var table string
		var n int
		if err := rows.Scan(&table, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fallback count")
		}
		counts[table] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count fallback iterate")
}
