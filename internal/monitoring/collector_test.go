package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

type fallbackFixture struct {
	table string
	at    time.Time
}

// mockHealthStore implements HealthQuerier for testing.
type mockHealthStore struct {
	byStatus    map[model.JobStatus]int
	snapshotted int
	budgeted    int
	fallbacks   []fallbackFixture
	countErr    error
}

func (m *mockHealthStore) CountJobsByStatus(context.Context) (map[model.JobStatus]int, error) {
	if m.countErr != nil {
		return nil, m.countErr
	}
	return m.byStatus, nil
}

func (m *mockHealthStore) CountSnapshottedJobs(context.Context) (int, error) {
	return m.snapshotted, nil
}

func (m *mockHealthStore) CountBudgetedJobs(context.Context) (int, error) {
	return m.budgeted, nil
}

func (m *mockHealthStore) CountFallbackEvents(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, f := range m.fallbacks {
		if !f.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockHealthStore) CountFallbackEventsByTable(_ context.Context, since time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, f := range m.fallbacks {
		if !f.at.Before(since) {
			counts[f.table]++
		}
	}
	return counts, nil
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockHealthStore{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.JobsTotal)
	assert.Equal(t, 0, snap.SnapshottedJobs)
	assert.Equal(t, 0, snap.BudgetedJobs)
	assert.Equal(t, 0, snap.FallbackEvents)
	assert.Nil(t, snap.FallbackEventsByTable)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_JobCounts(t *testing.T) {
	st := &mockHealthStore{
		byStatus: map[model.JobStatus]int{
			model.JobStatusOpen:       4,
			model.JobStatusSelected:   2,
			model.JobStatusCalculated: 3,
			model.JobStatusCertified:  1,
		},
		snapshotted: 5,
		budgeted:    3,
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 10, snap.JobsTotal)
	assert.Equal(t, 4, snap.JobsOpen)
	assert.Equal(t, 2, snap.JobsSelected)
	assert.Equal(t, 3, snap.JobsCalculated)
	assert.Equal(t, 1, snap.JobsCertified)
	assert.Equal(t, 5, snap.SnapshottedJobs)
	assert.Equal(t, 3, snap.BudgetedJobs)
}

func TestCollector_FallbackWindow(t *testing.T) {
	now := time.Now().UTC()
	st := &mockHealthStore{
		fallbacks: []fallbackFixture{
			{table: "pressure_uncertainty_bands", at: now.Add(-1 * time.Hour)},
			{table: "pressure_uncertainty_bands", at: now.Add(-3 * time.Hour)},
			{table: "cmc_bands", at: now.Add(-2 * time.Hour)},
			// Outside lookback window.
			{table: "cmc_bands", at: now.Add(-72 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.FallbackEvents)
	assert.Equal(t, map[string]int{
		"pressure_uncertainty_bands": 2,
		"cmc_bands":                  1,
	}, snap.FallbackEventsByTable)
}

func TestCollector_StoreError(t *testing.T) {
	st := &mockHealthStore{countErr: eris.New("connection refused")}

	c := NewCollector(st)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count jobs by status")
}
