package selector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedReference loads two torque-transducer ranges (100-1000 and 1000-2000),
// one pressure range (0-700), one master standard per range and three wrench
// specs with different torque curves.
func seedReference(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	validUntil := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := st.DB().ExecContext(ctx, query, args...)
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
		('Hytorc', 'MXT-5', '7000', '200', '600', '1800', '100', '300', '500'),
		('Norbar', 'PTS-72', '4500', '300', '600', '900', '80', '240', '400'),
		('Enerpac', 'W-15', '1000', '50', '500', '900', '60', '180', '300')`)
}

func newJobFor(t *testing.T, st *store.SQLiteStore, mk, mdl string) *model.CalibrationJob {
	t.Helper()
	ctx := context.Background()

	eq, err := st.CreateInwardEquipment(ctx, model.InwardEquipment{
		Make: mk, Model: mdl, SerialNo: "SN-1", Capacity: d(t, "7000"), Unit: "Nm",
	})
	require.NoError(t, err)

	job, err := st.CreateJob(ctx, model.CalibrationJob{
		InwardEqpID:     eq.ID,
		CalibrationDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		GaugeResolution: d(t, "0.1"),
		DeviceClass:     "industrial",
	})
	require.NoError(t, err)
	return job
}

func TestSelect_SpansTwoTorqueRanges(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	ctx := context.Background()
	job := newJobFor(t, st, "Hytorc", "MXT-5")

	// Target range [200, 1800] crosses both torque ranges.
	res, err := New(st).Select(ctx, Params{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)

	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, []int{1, 2, 3},
		[]int{snaps[0].SelectionOrder, snaps[1].SelectionOrder, snaps[2].SelectionOrder})
	assert.Equal(t, "TT-01", snaps[0].IdentificationNo)
	assert.Equal(t, "TT-02", snaps[1].IdentificationNo)
	assert.Equal(t, "PG-01", snaps[2].IdentificationNo)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSelected, got.Status)
}

func TestSelect_SingleRangeDeduped(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	job := newJobFor(t, st, "Norbar", "PTS-72")

	// Both bounds of [300, 900] sit in the 100-1000 range.
	res, err := New(st).Select(context.Background(), Params{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, "TT-01", res.Snapshots[0].IdentificationNo)
	assert.Equal(t, "PG-01", res.Snapshots[1].IdentificationNo)
}

func TestSelect_ObservedTorqueWidensRange(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	ctx := context.Background()
	job := newJobFor(t, st, "Norbar", "PTS-72")

	// A tested point beyond the spec's 900 Nm pulls in the upper range.
	_, err := st.UpsertRepeatabilityRecord(ctx, model.RepeatabilityRecord{
		JobID:       job.ID,
		StepPercent: 100,
		SetPressure: d(t, "400"),
		SetTorque:   d(t, "1500"),
	})
	require.NoError(t, err)

	res, err := New(st).Select(ctx, Params{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)
	assert.Equal(t, "TT-02", res.Snapshots[1].IdentificationNo)
}

func TestSelect_FloorClampsLowBound(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	job := newJobFor(t, st, "Enerpac", "W-15")

	// Spec 20% torque is 50, below the 100 Nm floor; the clamped bound still
	// matches the first range instead of failing.
	res, err := New(st).Select(context.Background(), Params{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, "TT-01", res.Snapshots[0].IdentificationNo)
}

// snapshotKey projects the fields that must be stable across reruns.
type snapshotKey struct {
	Order      int
	StandardID int64
	Ident      string
	Lab        string
	CertNo     string
	RangeMin   string
	RangeMax   string
}

func projectSnapshots(snaps []model.StandardSnapshot) []snapshotKey {
	keys := make([]snapshotKey, 0, len(snaps))
	for _, s := range snaps {
		keys = append(keys, snapshotKey{
			Order:      s.SelectionOrder,
			StandardID: s.MasterStandardID,
			Ident:      s.IdentificationNo,
			Lab:        s.TraceabilityLab,
			CertNo:     s.CertificateNo,
			RangeMin:   s.RangeMin.String(),
			RangeMax:   s.RangeMax.String(),
		})
	}
	return keys
}

func TestSelect_Idempotent(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	ctx := context.Background()
	job := newJobFor(t, st, "Hytorc", "MXT-5")
	sel := New(st)

	first, err := sel.Select(ctx, Params{JobID: job.ID})
	require.NoError(t, err)
	second, err := sel.Select(ctx, Params{JobID: job.ID})
	require.NoError(t, err)

	assert.Equal(t, projectSnapshots(first.Snapshots), projectSnapshots(second.Snapshots))

	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 3, "rebuild must replace, not append")
}

func TestSelect_LabOverride(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	ctx := context.Background()
	job := newJobFor(t, st, "Hytorc", "MXT-5")

	res, err := New(st).Select(ctx, Params{
		JobID:        job.ID,
		LabOverrides: map[string]string{"TT-01": "PTB", "ZZ-99": "ignored"},
	})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)
	assert.Equal(t, "PTB", res.Snapshots[0].TraceabilityLab)
	assert.Equal(t, "NPL", res.Snapshots[1].TraceabilityLab)

	// The live reference row is untouched.
	var lab string
	err = st.DB().QueryRowContext(ctx,
		`SELECT traceability_lab FROM master_standards WHERE identification_no = 'TT-01'`).Scan(&lab)
	require.NoError(t, err)
	assert.Equal(t, "NPL", lab)
}

func TestSelect_MissingSpec_KeepsExistingSnapshot(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	ctx := context.Background()
	job := newJobFor(t, st, "Acme", "Unknown")

	_, err := st.InsertStandardSnapshot(ctx, model.StandardSnapshot{
		JobID:          job.ID,
		SelectionOrder: 1,
		Nomenclature:   "TORQUE TRANSDUCER",
		RangeMin:       d(t, "100"),
		RangeMax:       d(t, "1000"),
		ValidUntil:     time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = New(st).Select(ctx, Params{JobID: job.ID})
	require.Error(t, err)
	assert.True(t, calerr.IsConfigMissing(err))

	// The failed rebuild rolled back its delete.
	snaps, err := st.ListStandardSnapshots(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSelect_NoValidStandard(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)
	job := newJobFor(t, st, "Hytorc", "MXT-5")

	// Every certificate expires before this date.
	_, err := New(st).Select(context.Background(), Params{
		JobID:   job.ID,
		JobDate: time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, calerr.IsConfigMissing(err))
	assert.Contains(t, err.Error(), "master_standards")
}

func TestSelect_UnknownJob(t *testing.T) {
	st := newTestStore(t)
	seedReference(t, st)

	_, err := New(st).Select(context.Background(), Params{JobID: 404})
	require.Error(t, err)
	assert.True(t, calerr.IsNotFound(err))
}
