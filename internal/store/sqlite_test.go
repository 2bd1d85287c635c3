package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// newTestJob seeds one inward equipment row and an open job for it.
func newTestJob(t *testing.T, st *SQLiteStore) *model.CalibrationJob {
	t.Helper()
	ctx := context.Background()

	eq, err := st.CreateInwardEquipment(ctx, model.InwardEquipment{
		Make:     "Hytorc",
		Model:    "MXT-5",
		SerialNo: "SN-1001",
		Capacity: dec(t, "7000"),
		Unit:     "Nm",
	})
	require.NoError(t, err)

	job, err := st.CreateJob(ctx, model.CalibrationJob{
		InwardEqpID:     eq.ID,
		CalibrationDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		GaugeResolution: dec(t, "0.1"),
		DeviceClass:     "industrial",
	})
	require.NoError(t, err)
	require.Equal(t, model.JobStatusOpen, job.Status)
	return job
}

// --- Jobs ---

func TestSQLite_Job_CreateGetUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob(t, st)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "0.1", got.GaugeResolution.String())
	assert.Equal(t, model.JobStatusOpen, got.Status)

	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, model.JobStatusSelected))
	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSelected, got.Status)
}

func TestSQLite_Job_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetJob(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, calerr.IsNotFound(err))

	err = st.UpdateJobStatus(context.Background(), 404, model.JobStatusCertified)
	require.Error(t, err)
	assert.True(t, calerr.IsNotFound(err))
}

func TestSQLite_Job_ListByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j1 := newTestJob(t, st)
	newTestJob(t, st)
	require.NoError(t, st.UpdateJobStatus(ctx, j1.ID, model.JobStatusCalculated))

	calculated, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusCalculated})
	require.NoError(t, err)
	require.Len(t, calculated, 1)
	assert.Equal(t, j1.ID, calculated[0].ID)

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Repeatability records ---

func TestSQLite_Repeatability_UpsertReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	rec := model.RepeatabilityRecord{
		JobID:       job.ID,
		StepPercent: 100,
		SetPressure: dec(t, "500"),
		SetTorque:   dec(t, "1000"),
		Readings:    []decimal.Decimal{dec(t, "999.8"), dec(t, "1000.1"), dec(t, "1000.0")},
	}
	first, err := st.UpsertRepeatabilityRecord(ctx, rec)
	require.NoError(t, err)

	rec.SetPressure = dec(t, "505")
	second, err := st.UpsertRepeatabilityRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	recs, err := st.ListRepeatabilityRecords(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "505", recs[0].SetPressure.String())
	require.Len(t, recs[0].Readings, 3)
	assert.Equal(t, "999.8", recs[0].Readings[0].String())
}

func TestSQLite_Repeatability_ListOrderedByStep(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	for _, step := range []int{100, 20, 60} {
		_, err := st.UpsertRepeatabilityRecord(ctx, model.RepeatabilityRecord{
			JobID:       job.ID,
			StepPercent: step,
			SetPressure: dec(t, "100"),
			SetTorque:   dec(t, "200"),
		})
		require.NoError(t, err)
	}

	recs, err := st.ListRepeatabilityRecords(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{20, 60, 100}, []int{recs[0].StepPercent, recs[1].StepPercent, recs[2].StepPercent})
}

// --- Variation records ---

func TestSQLite_Variation_LatestPerFamily(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := st.InsertVariationRecord(ctx, model.VariationRecord{
		JobID: job.ID, Family: model.VariationOutputDrive,
		TargetTorque: dec(t, "1000"), ErrorValue: dec(t, "2.5"), RecordedAt: older,
	})
	require.NoError(t, err)
	_, err = st.InsertVariationRecord(ctx, model.VariationRecord{
		JobID: job.ID, Family: model.VariationOutputDrive,
		TargetTorque: dec(t, "1000"), ErrorValue: dec(t, "1.5"), RecordedAt: newer,
	})
	require.NoError(t, err)
	_, err = st.InsertVariationRecord(ctx, model.VariationRecord{
		JobID: job.ID, Family: model.VariationLoadingPoint,
		TargetTorque: dec(t, "1000"), ErrorValue: dec(t, "0.75"), RecordedAt: older,
	})
	require.NoError(t, err)

	recs, err := st.LatestVariationRecords(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byFamily := make(map[model.VariationFamily]model.VariationRecord, len(recs))
	for _, r := range recs {
		byFamily[r.Family] = r
	}
	assert.Equal(t, "1.5", byFamily[model.VariationOutputDrive].ErrorValue.String())
	assert.Equal(t, "0.75", byFamily[model.VariationLoadingPoint].ErrorValue.String())
}

// --- Reference lookups ---

func seedReferenceTables(t *testing.T, st *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	validUntil := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := st.db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO nomenclature_ranges (nomenclature, range_min, range_max, unit) VALUES
		('TORQUE TRANSDUCER', '100', '1000', 'Nm'),
		('TORQUE TRANSDUCER', '1000', '2000', 'Nm'),
		('PRESSURE GAUGE', '0', '700', 'bar')`)
	exec(`INSERT INTO master_standards
		(nomenclature_range_id, nomenclature, manufacturer, identification_no, traceability_lab, certificate_no, valid_until, uncertainty_value, uncertainty_unit, resolution, accuracy, range_min, range_max, unit)
		VALUES
		(1, 'TORQUE TRANSDUCER', 'HBM', 'TT-01', 'NPL', 'CERT-100', ?, '0.25', '%', '0.01', '0.1', '100', '1000', 'Nm'),
		(2, 'TORQUE TRANSDUCER', 'HBM', 'TT-02', 'NPL', 'CERT-200', ?, '0.25', '%', '0.1', '0.1', '1000', '2000', 'Nm'),
		(3, 'PRESSURE GAUGE', 'WIKA', 'PG-01', 'NPL', 'CERT-300', ?, '0.1', '%', '0.01', '0.05', '0', '700', 'bar')`,
		validUntil, validUntil, validUntil)
	exec(`INSERT INTO manufacturer_specs (make, model, capacity, torque_20, torque_60, torque_100, pressure_20, pressure_60, pressure_100) VALUES
		('Hytorc', 'MXT-5', '7000', '200', '600', '1800', '100', '300', '500')`)
	exec(`INSERT INTO pressure_uncertainty_bands (pressure_min, pressure_max, uncertainty_percent) VALUES
		('0', '350', '0.2'),
		('350', '700', '0.25')`)
	exec(`INSERT INTO standard_uncertainty_points (indicated_torque, uncertainty_percent) VALUES
		('500', '0.5'),
		('1000', '0.6'),
		('2000', '0.8')`)
	exec(`INSERT INTO max_error_bands (torque_min, torque_max, max_error_percent) VALUES
		('0', '1000', '1'),
		('1000', '5000', '1.5')`)
	exec(`INSERT INTO cmc_bands (torque_min, torque_max, cmc_percent) VALUES
		('0', '1000', '0.45'),
		('1000', '5000', '0.6')`)
	exec(`INSERT INTO t_distribution (degrees_of_freedom, alpha, factor) VALUES
		(7, '0.0455', '2.432'),
		(100, '0.0455', '2.025')`)
}

func TestSQLite_GetManufacturerSpec(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	spec, err := st.GetManufacturerSpec(ctx, "Hytorc", "MXT-5")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "1800", spec.Torque100.String())
	assert.Equal(t, "500", spec.Pressure100.String())

	missing, err := st.GetManufacturerSpec(ctx, "Acme", "Unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ListNomenclatureRanges_OrderedByUpperBound(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)

	ranges, err := st.ListNomenclatureRanges(context.Background())
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, "700", ranges[0].RangeMax.String())
	assert.Equal(t, "1000", ranges[1].RangeMax.String())
	assert.Equal(t, "2000", ranges[2].RangeMax.String())
}

func TestSQLite_ListMasterStandards_FiltersValidity(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	jobDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	standards, err := st.ListMasterStandards(ctx, 1, jobDate)
	require.NoError(t, err)
	require.Len(t, standards, 1)
	assert.Equal(t, "TT-01", standards[0].IdentificationNo)

	// A job dated past every certificate finds nothing.
	expired, err := st.ListMasterStandards(ctx, 1, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSQLite_FindPressureBand(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	band, err := st.FindPressureBand(ctx, dec(t, "500"))
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, "0.25", band.UncertaintyPercent.String())

	// Boundary value matches the narrower band.
	band, err = st.FindPressureBand(ctx, dec(t, "350"))
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, "0.2", band.UncertaintyPercent.String())

	miss, err := st.FindPressureBand(ctx, dec(t, "9999"))
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSQLite_FindStandardUncertaintyPoint(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	// Smallest indicated torque at or above the step torque.
	pt, err := st.FindStandardUncertaintyPoint(ctx, dec(t, "600"))
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "1000", pt.IndicatedTorque.String())

	// Above every point: falls back to the largest.
	pt, err = st.FindStandardUncertaintyPoint(ctx, dec(t, "5000"))
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "2000", pt.IndicatedTorque.String())
}

func TestSQLite_FindCMCBand_HalfOpen(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	// torque_max is exclusive: 1000 falls into the next band.
	band, err := st.FindCMCBand(ctx, dec(t, "1000"))
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, "0.6", band.CMCPercent.String())

	band, err = st.FindCMCBand(ctx, dec(t, "999.99"))
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.Equal(t, "0.45", band.CMCPercent.String())
}

func TestSQLite_GetTFactor(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedReferenceTables(t, st)
	ctx := context.Background()

	row, err := st.GetTFactor(ctx, 7, dec(t, "0.0455"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2.432", row.Factor.String())

	miss, err := st.GetTFactor(ctx, 55, dec(t, "0.0455"))
	require.NoError(t, err)
	assert.Nil(t, miss)
}

// --- Snapshots ---

func TestSQLite_Snapshots_DeleteAndRebuild(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	validUntil := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		_, err := st.InsertStandardSnapshot(ctx, model.StandardSnapshot{
			JobID:            job.ID,
			SelectionOrder:   i,
			MasterStandardID: int64(i),
			Nomenclature:     "TORQUE TRANSDUCER",
			RangeMin:         dec(t, "100"),
			RangeMax:         dec(t, "1000"),
			Unit:             "Nm",
			ValidUntil:       validUntil,
			UncertaintyValue: dec(t, "0.25"),
			UncertaintyUnit:  "%",
			Resolution:       dec(t, "0.01"),
			Accuracy:         dec(t, "0.1"),
		})
		require.NoError(t, err)
	}

	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 1, snaps[0].SelectionOrder)
	assert.Equal(t, 3, snaps[2].SelectionOrder)

	require.NoError(t, st.DeleteStandardSnapshots(ctx, job.ID))
	snaps, err = st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

// --- Budgets ---

func TestSQLite_Budget_UpsertRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	dof := dec(t, "7.123")
	b := model.UncertaintyBudget{
		JobID:                      job.ID,
		StepPercent:                100,
		SetTorque:                  dec(t, "1000"),
		SetPressure:                dec(t, "500"),
		CorrectedMean:              dec(t, "998.5"),
		WRe:                        dec(t, "0.12345678"),
		WR:                         dec(t, "0.00288675"),
		DeltaSUn:                   dec(t, "0.1"),
		CombinedUncertainty:        dec(t, "0.15811388"),
		EffectiveDOF:               &dof,
		CoverageFactor:             dec(t, "2.432"),
		ExpandedUncertaintyPercent: dec(t, "0.38453295"),
		ExpandedUncertaintyTorque:  dec(t, "3.8453295"),
		MeanMeasurementError:       dec(t, "0.15"),
		MaxDeviceError:             dec(t, "1"),
		CMC:                        dec(t, "4.5"),
		CMCOfReadingPercent:        dec(t, "0.45"),
		FinalValue:                 dec(t, "1.53453295"),
		ComputedAt:                 time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.UpsertUncertaintyBudget(ctx, b))

	// Same key again: updated in place, not duplicated.
	b.FinalValue = dec(t, "1.6")
	require.NoError(t, st.UpsertUncertaintyBudget(ctx, b))

	budgets, err := st.ListUncertaintyBudgets(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	got := budgets[0]
	assert.Equal(t, "0.12345678", got.WRe.String())
	assert.Equal(t, "1.6", got.FinalValue.String())
	require.NotNil(t, got.EffectiveDOF)
	assert.Equal(t, "7.123", got.EffectiveDOF.String())
}

func TestSQLite_Budget_NullEffectiveDOF(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	b := model.UncertaintyBudget{
		JobID:          job.ID,
		StepPercent:    20,
		SetTorque:      dec(t, "200"),
		SetPressure:    dec(t, "100"),
		CorrectedMean:  dec(t, "199.5"),
		CoverageFactor: dec(t, "2"),
		ComputedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.UpsertUncertaintyBudget(ctx, b))

	budgets, err := st.ListUncertaintyBudgets(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Nil(t, budgets[0].EffectiveDOF)
	assert.Equal(t, "2", budgets[0].CoverageFactor.String())
}

// --- Fallback events ---

func TestSQLite_FallbackEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	step := 60
	require.NoError(t, st.InsertFallbackEvent(ctx, model.FallbackEvent{
		JobID:       job.ID,
		StepPercent: &step,
		TableName:   "pressure_uncertainty_bands",
		LookupKey:   "set_pressure=9999",
		DefaultUsed: dec(t, "0.1"),
	}))
	require.NoError(t, st.InsertFallbackEvent(ctx, model.FallbackEvent{
		JobID:       job.ID,
		TableName:   "cmc_bands",
		LookupKey:   "set_torque=12000",
		DefaultUsed: dec(t, "0.5"),
	}))

	events, err := st.ListFallbackEvents(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].StepPercent)
	assert.Equal(t, 60, *events[0].StepPercent)
	assert.Nil(t, events[1].StepPercent)

	n, err := st.CountFallbackEvents(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	byTable, err := st.CountFallbackEventsByTable(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"pressure_uncertainty_bands": 1,
		"cmc_bands":                  1,
	}, byTable)

	// Events older than the window are invisible to both counters.
	n, err = st.CountFallbackEvents(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	byTable, err = st.CountFallbackEventsByTable(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, byTable)
}

// --- Transactions ---

func TestSQLite_InJobTx_RollbackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	sentinel := calerr.NewConfigMissing("nomenclature_ranges", "no active torque range")
	err := st.InJobTx(ctx, job.ID, func(q Queries) error {
		if _, err := q.InsertStandardSnapshot(ctx, model.StandardSnapshot{
			JobID:          job.ID,
			SelectionOrder: 1,
			Nomenclature:   "TORQUE TRANSDUCER",
			RangeMin:       dec(t, "100"),
			RangeMax:       dec(t, "1000"),
			ValidUntil:     time.Now().UTC(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.Error(t, err)
	assert.True(t, calerr.IsConfigMissing(err))

	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps, "rolled-back snapshot must not be visible")
}

func TestSQLite_InJobTx_Commit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := newTestJob(t, st)

	err := st.InJobTx(ctx, job.ID, func(q Queries) error {
		if err := q.DeleteStandardSnapshots(ctx, job.ID); err != nil {
			return err
		}
		_, err := q.InsertStandardSnapshot(ctx, model.StandardSnapshot{
			JobID:          job.ID,
			SelectionOrder: 1,
			Nomenclature:   "TORQUE TRANSDUCER",
			RangeMin:       dec(t, "100"),
			RangeMax:       dec(t, "1000"),
			ValidUntil:     time.Now().UTC(),
		})
		return err
	})
	require.NoError(t, err)

	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

// --- Counters ---

func TestSQLite_Counters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j1 := newTestJob(t, st)
	newTestJob(t, st)
	require.NoError(t, st.UpdateJobStatus(ctx, j1.ID, model.JobStatusCalculated))

	counts, err := st.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobStatusOpen])
	assert.Equal(t, 1, counts[model.JobStatusCalculated])

	require.NoError(t, st.UpsertUncertaintyBudget(ctx, model.UncertaintyBudget{
		JobID: j1.ID, StepPercent: 100,
		SetTorque: dec(t, "1000"), SetPressure: dec(t, "500"), CorrectedMean: dec(t, "998"),
		CoverageFactor: dec(t, "2"), ComputedAt: time.Now().UTC(),
	}))
	n, err := st.CountBudgetedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.CountSnapshottedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
