package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// JobFilter specifies criteria for listing calibration jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Queries is the typed query surface shared by a pool-bound store and a
// transaction handed to InJobTx. Reference-table lookups return (nil, nil)
// on a miss; the calling engine decides whether that is a documented
// fallback or a configuration error.
type Queries interface {
	// Equipment and jobs
	CreateInwardEquipment(ctx context.Context, eq model.InwardEquipment) (*model.InwardEquipment, error)
	GetInwardEquipment(ctx context.Context, id int64) (*model.InwardEquipment, error)
	CreateJob(ctx context.Context, job model.CalibrationJob) (*model.CalibrationJob, error)
	GetJob(ctx context.Context, jobID int64) (*model.CalibrationJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.CalibrationJob, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error

	// Test data
	UpsertRepeatabilityRecord(ctx context.Context, rec model.RepeatabilityRecord) (*model.RepeatabilityRecord, error)
	ListRepeatabilityRecords(ctx context.Context, jobID int64) ([]model.RepeatabilityRecord, error)
	InsertVariationRecord(ctx context.Context, rec model.VariationRecord) (*model.VariationRecord, error)
	LatestVariationRecords(ctx context.Context, jobID int64) ([]model.VariationRecord, error)

	// Live reference tables
	GetManufacturerSpec(ctx context.Context, mk, mdl string) (*model.ManufacturerSpec, error)
	ListNomenclatureRanges(ctx context.Context) ([]model.NomenclatureRange, error)
	ListMasterStandards(ctx context.Context, rangeID int64, validOn time.Time) ([]model.MasterStandard, error)
	LookupGaugeResolution(ctx context.Context, resolution decimal.Decimal) (*model.GaugeResolution, error)
	FindPressureBand(ctx context.Context, pressure decimal.Decimal) (*model.PressureUncertaintyBand, error)
	FindStandardUncertaintyPoint(ctx context.Context, torque decimal.Decimal) (*model.StandardUncertaintyPoint, error)
	FindMaxErrorBand(ctx context.Context, torque decimal.Decimal) (*model.MaxErrorBand, error)
	FindCMCBand(ctx context.Context, torque decimal.Decimal) (*model.CMCBand, error)
	GetTFactor(ctx context.Context, dof int64, alpha decimal.Decimal) (*model.TDistributionRow, error)

	// Traceability snapshots
	DeleteStandardSnapshots(ctx context.Context, jobID int64) error
	InsertStandardSnapshot(ctx context.Context, snap model.StandardSnapshot) (*model.StandardSnapshot, error)
	ListStandardSnapshots(ctx context.Context, jobID int64) ([]model.StandardSnapshot, error)

	// Budgets and fallback audit
	UpsertUncertaintyBudget(ctx context.Context, b model.UncertaintyBudget) error
	ListUncertaintyBudgets(ctx context.Context, jobID int64) ([]model.UncertaintyBudget, error)
	InsertFallbackEvent(ctx context.Context, ev model.FallbackEvent) error
	ListFallbackEvents(ctx context.Context, jobID int64) ([]model.FallbackEvent, error)

	// Health counters
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	CountSnapshottedJobs(ctx context.Context) (int, error)
	CountBudgetedJobs(ctx context.Context) (int, error)
	CountFallbackEvents(ctx context.Context, since time.Time) (int, error)
	CountFallbackEventsByTable(ctx context.Context, since time.Time) (map[string]int, error)
}

// Store defines the persistence interface for the calibration core.
type Store interface {
	Queries

	// InJobTx runs fn inside a transaction that holds an exclusive per-job
	// lock. Snapshot rebuilds and budget recomputes for the same job are
	// serialized through it; different jobs proceed independently.
	InJobTx(ctx context.Context, jobID int64, fn func(q Queries) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
