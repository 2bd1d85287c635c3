// Package selector picks the master standards certifying a calibration job
// and freezes them into per-job snapshot rows. Selection is a pure function
// of the reference tables and the job's test data: every run deletes the
// previous snapshot and rebuilds it inside one job-locked transaction, so a
// failed run leaves the prior snapshot untouched and a repeated run yields
// identical rows.
package selector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

// Params identifies the job to select standards for. InwardEqpID and
// JobDate default to the values stored on the job row when left zero.
// LabOverrides substitutes the traceability-lab string of a selected
// standard, keyed by the standard's identification number; it never changes
// which standard is selected.
type Params struct {
	JobID        int64
	InwardEqpID  int64
	JobDate      time.Time
	LabOverrides map[string]string
}

// Result reports the snapshot rows written for the job, in selection order.
type Result struct {
	JobID     int64                    `json:"job_id"`
	Snapshots []model.StandardSnapshot `json:"snapshots"`
}

// Selector rebuilds the standard snapshot of a job.
type Selector struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Selector backed by the given store.
func New(st store.Store) *Selector {
	return &Selector{
		store: st,
		log:   zap.L().With(zap.String("component", "selector")),
	}
}

// Select recomputes and persists the standard snapshot for a job. It fails
// with a calerr.ConfigMissingError when no active manufacturer spec, no
// covering nomenclature range, or no valid master standard exists; nothing
// is written in that case.
func (s *Selector) Select(ctx context.Context, p Params) (*Result, error) {
	var result *Result
	err := s.store.InJobTx(ctx, p.JobID, func(q store.Queries) error {
		r, err := s.selectLocked(ctx, q, p)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("standards selected",
		zap.Int64("job_id", p.JobID),
		zap.Int("snapshots", len(result.Snapshots)),
	)
	return result, nil
}

func (s *Selector) selectLocked(ctx context.Context, q store.Queries, p Params) (*Result, error) {
	job, err := q.GetJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	eqpID := p.InwardEqpID
	if eqpID == 0 {
		eqpID = job.InwardEqpID
	}
	jobDate := p.JobDate
	if jobDate.IsZero() {
		jobDate = job.CalibrationDate
	}
	eq, err := q.GetInwardEquipment(ctx, eqpID)
	if err != nil {
		return nil, err
	}

	// Rebuild from scratch; the transaction keeps the old rows visible to
	// readers until commit.
	if err := q.DeleteStandardSnapshots(ctx, p.JobID); err != nil {
		return nil, err
	}

	spec, err := q.GetManufacturerSpec(ctx, eq.Make, eq.Model)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, calerr.NewConfigMissing("manufacturer_specs",
			"no active specification for %s %s", eq.Make, eq.Model)
	}

	recs, err := q.ListRepeatabilityRecords(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	lower, upper := targetTorqueRange(*spec, recs)

	ranges, err := q.ListNomenclatureRanges(ctx)
	if err != nil {
		return nil, err
	}
	var torqueRanges, pressureRanges []model.NomenclatureRange
	for _, r := range ranges {
		if r.IsTorque() {
			torqueRanges = append(torqueRanges, r)
		} else {
			pressureRanges = append(pressureRanges, r)
		}
	}
	if len(torqueRanges) == 0 {
		return nil, calerr.NewConfigMissing("nomenclature_ranges",
			"no active %s ranges", model.TorqueTransducerNomenclature)
	}

	// No certified measurement exists below the smallest range start; both
	// bounds are lifted to that floor before matching.
	floor := globalFloor(torqueRanges)
	if lower.LessThan(floor) {
		lower = floor
	}
	if upper.LessThan(floor) {
		upper = floor
	}

	lowRange := narrowestCovering(torqueRanges, lower)
	highRange := narrowestCovering(torqueRanges, upper)
	if lowRange == nil && highRange == nil {
		return nil, calerr.NewConfigMissing("nomenclature_ranges",
			"no active torque range covers [%s, %s]", lower, upper)
	}
	selected := make([]model.NomenclatureRange, 0, 3)
	if lowRange != nil {
		selected = append(selected, *lowRange)
	}
	if highRange != nil && (lowRange == nil || highRange.ID != lowRange.ID) {
		selected = append(selected, *highRange)
	}

	pressureRange := narrowestCovering(pressureRanges, referencePressure(*spec, recs))
	if pressureRange == nil {
		pressureRange = narrowest(pressureRanges)
	}
	if pressureRange == nil {
		return nil, calerr.NewConfigMissing("nomenclature_ranges",
			"no active pressure range configured")
	}
	selected = append(selected, *pressureRange)

	snaps := make([]model.StandardSnapshot, 0, len(selected))
	for i, rng := range selected {
		standards, err := q.ListMasterStandards(ctx, rng.ID, jobDate)
		if err != nil {
			return nil, err
		}
		ms := leastUpperBound(standards)
		if ms == nil {
			return nil, calerr.NewConfigMissing("master_standards",
				"no active standard for %s [%s, %s] valid on %s",
				rng.Nomenclature, rng.RangeMin, rng.RangeMax, jobDate.Format("2006-01-02"))
		}
		if lab, ok := p.LabOverrides[ms.IdentificationNo]; ok && lab != "" {
			ms.TraceabilityLab = lab
		}
		stored, err := q.InsertStandardSnapshot(ctx, model.SnapshotFrom(p.JobID, i+1, *ms, rng))
		if err != nil {
			return nil, eris.Wrapf(err, "selector: snapshot %d for job %d", i+1, p.JobID)
		}
		snaps = append(snaps, *stored)
	}

	if job.Status == model.JobStatusOpen {
		if err := q.UpdateJobStatus(ctx, p.JobID, model.JobStatusSelected); err != nil {
			return nil, err
		}
	}

	return &Result{JobID: p.JobID, Snapshots: snaps}, nil
}

// targetTorqueRange computes the torque interval the job must be certified
// over: the manufacturer's 20%..100% curve, widened to include any set
// torque already tested on the job.
func targetTorqueRange(spec model.ManufacturerSpec, recs []model.RepeatabilityRecord) (lower, upper decimal.Decimal) {
	lower, upper = spec.Torque20, spec.Torque100
	for _, rec := range recs {
		if !rec.SetTorque.IsPositive() {
			continue
		}
		lower = decimal.Min(lower, rec.SetTorque)
		upper = decimal.Max(upper, rec.SetTorque)
	}
	return lower, upper
}

// referencePressure returns the pressure the pressure-side range should
// cover: the tested 100%-step pressure when available, falling back to the
// highest tested step, then to the spec's 100% pressure.
func referencePressure(spec model.ManufacturerSpec, recs []model.RepeatabilityRecord) decimal.Decimal {
	best := -1
	pressure := spec.Pressure100
	for _, rec := range recs {
		if rec.StepPercent == 100 {
			return rec.SetPressure
		}
		if rec.StepPercent > best {
			best = rec.StepPercent
			pressure = rec.SetPressure
		}
	}
	return pressure
}
