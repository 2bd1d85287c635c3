// Package monitoring produces point-in-time health snapshots of the
// calibration core: job counts by lifecycle status, snapshot and budget
// coverage, and reference-table fallback activity. Snapshots are served
// by `lims status` and GET /api/status; nothing here delivers alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// MetricsSnapshot holds a point-in-time view of calibration throughput
// and reference-data health.
type MetricsSnapshot struct {
	// Job counts by lifecycle status.
	JobsTotal      int `json:"jobs_total"`
	JobsOpen       int `json:"jobs_open"`
	JobsSelected   int `json:"jobs_selected"`
	JobsCalculated int `json:"jobs_calculated"`
	JobsCertified  int `json:"jobs_certified"`

	// Coverage: jobs holding traceability snapshots / computed budgets.
	SnapshottedJobs int `json:"snapshotted_jobs"`
	BudgetedJobs    int `json:"budgeted_jobs"`

	// Reference-table fallback events within the lookback window. A
	// sustained count here means a band table no longer covers the
	// torque or pressure range of incoming jobs.
	FallbackEvents        int            `json:"fallback_events"`
	FallbackEventsByTable map[string]int `json:"fallback_events_by_table,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// HealthQuerier abstracts the store counters needed by the collector.
type HealthQuerier interface {
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	CountSnapshottedJobs(ctx context.Context) (int, error)
	CountBudgetedJobs(ctx context.Context) (int, error)
	CountFallbackEvents(ctx context.Context, since time.Time) (int, error)
	CountFallbackEventsByTable(ctx context.Context, since time.Time) (map[string]int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store HealthQuerier
}

// NewCollector creates a new metrics collector.
func NewCollector(st HealthQuerier) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of system metrics. Job and coverage counts
// are totals; fallback counts are restricted to the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	byStatus, err := c.store.CountJobsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count jobs by status")
	}
	snap.JobsOpen = byStatus[model.JobStatusOpen]
	snap.JobsSelected = byStatus[model.JobStatusSelected]
	snap.JobsCalculated = byStatus[model.JobStatusCalculated]
	snap.JobsCertified = byStatus[model.JobStatusCertified]
	for _, n := range byStatus {
		snap.JobsTotal += n
	}

	snapshotted, err := c.store.CountSnapshottedJobs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count snapshotted jobs")
	}
	snap.SnapshottedJobs = snapshotted

	budgeted, err := c.store.CountBudgetedJobs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count budgeted jobs")
	}
	snap.BudgetedJobs = budgeted

	fallbacks, err := c.store.CountFallbackEvents(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count fallback events")
	}
	snap.FallbackEvents = fallbacks

	byTable, err := c.store.CountFallbackEventsByTable(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count fallback events by table")
	}
	if len(byTable) > 0 {
		snap.FallbackEventsByTable = byTable
	}

	return snap, nil
}
