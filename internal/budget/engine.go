// Package budget computes the per-step measurement uncertainty budget of a
// calibration job: every independent contributor, their quadrature
// combination, the Welch-Satterthwaite effective degrees of freedom, the
// coverage factor and the resulting expanded uncertainty and capability
// decision. The whole chain runs in 50-digit decimal arithmetic; values are
// rounded once, when the budget row is persisted.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/dmath"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

// Documented defaults applied when a reference table has no matching row.
// Every application is recorded as a lookup_fallback_events row.
var (
	defaultUnPGPercent   = decimal.RequireFromString("0.1")
	defaultStdUncPercent = decimal.RequireFromString("1.0")
	defaultMaxErrPercent = decimal.RequireFromString("1.0")
	defaultCMCPercent    = decimal.RequireFromString("0.5")
	defaultCoverage      = decimal.RequireFromString("2.000")
)

// tTableAlpha is the two-sided significance level of the coverage-factor
// table (95.45% confidence).
var tTableAlpha = decimal.RequireFromString("0.0455")

// maxTableDOF is the largest degrees-of-freedom row the t-table carries;
// beyond it the coverage factor is the normal-distribution 2.000.
const maxTableDOF = 100

// Result reports one budget run.
type Result struct {
	JobID           int64 `json:"job_id"`
	StepsCalculated int   `json:"steps_calculated"`
	StepsSkipped    []int `json:"steps_skipped,omitempty"`
}

// Engine recomputes uncertainty budgets.
type Engine struct {
	store store.Store
	log   *zap.Logger
	nowFn func() time.Time
}

// New creates an Engine backed by the given store.
func New(st store.Store) *Engine {
	return &Engine{
		store: st,
		log:   zap.L().With(zap.String("component", "budget")),
		nowFn: time.Now,
	}
}

// WithNow fixes the computed_at timestamp for testing.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.nowFn = func() time.Time { return t }
	return e
}

// Compute rebuilds the budget rows for every valid repeatability step of the
// job inside one job-locked transaction. Steps with a zero set torque or
// corrected mean are skipped; a missing gauge resolution, missing
// repeatability data or zero reference pressure aborts the run with a
// calerr.PreconditionError and nothing written.
func (e *Engine) Compute(ctx context.Context, jobID int64) (*Result, error) {
	var result *Result
	err := e.store.InJobTx(ctx, jobID, func(q store.Queries) error {
		r, err := e.computeLocked(ctx, q, jobID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("budget computed",
		zap.Int64("job_id", jobID),
		zap.Int("steps", result.StepsCalculated),
		zap.Ints("skipped", result.StepsSkipped),
	)
	return result, nil
}

func (e *Engine) computeLocked(ctx context.Context, q store.Queries, jobID int64) (*Result, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.GaugeResolution.IsPositive() {
		return nil, calerr.NewPrecondition("job %d has no pressure gauge resolution", jobID)
	}
	recs, err := q.ListRepeatabilityRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, calerr.NewPrecondition("job %d has no repeatability records", jobID)
	}

	ref := referenceRecord(recs)
	if !ref.SetPressure.IsPositive() {
		return nil, calerr.NewPrecondition(
			"reference step %d%% of job %d has zero set pressure", ref.StepPercent, jobID)
	}

	variations, err := q.LatestVariationRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	jc, err := deriveConstants(job.GaugeResolution, ref, variations)
	if err != nil {
		return nil, err
	}

	result := &Result{JobID: jobID}
	computedAt := e.nowFn().UTC()
	for _, rec := range recs {
		if !rec.SetTorque.IsPositive() || !rec.CorrectedMean.IsPositive() {
			e.log.Warn("skipping degenerate step",
				zap.Int64("job_id", jobID),
				zap.Int("step_percent", rec.StepPercent),
				zap.String("set_torque", rec.SetTorque.String()),
				zap.String("corrected_mean", rec.CorrectedMean.String()),
			)
			result.StepsSkipped = append(result.StepsSkipped, rec.StepPercent)
			continue
		}
		row, err := e.computeStep(ctx, q, jc, rec)
		if err != nil {
			return nil, err
		}
		row.ComputedAt = computedAt
		if err := q.UpsertUncertaintyBudget(ctx, *row); err != nil {
			return nil, err
		}
		result.StepsCalculated++
	}

	if result.StepsCalculated > 0 &&
		(job.Status == model.JobStatusOpen || job.Status == model.JobStatusSelected) {
		if err := q.UpdateJobStatus(ctx, jobID, model.JobStatusCalculated); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// jobConstants holds the values derived once per job from the reference step
// and reused by every step computation.
type jobConstants struct {
	ratio    *apd.Decimal // set torque per set pressure at the reference step
	resConst *apd.Decimal // resolution / (10·√3)
	repConst *apd.Decimal // (resolution·0.5) / √3
	family   map[model.VariationFamily]*apd.Decimal
}

// referenceRecord picks the step supplying the per-job constants: the exact
// 100% step when recorded, otherwise the highest recorded step.
func referenceRecord(recs []model.RepeatabilityRecord) model.RepeatabilityRecord {
	best := recs[0]
	for _, rec := range recs {
		if rec.StepPercent == 100 {
			return rec
		}
		if rec.StepPercent > best.StepPercent {
			best = rec
		}
	}
	return best
}

func deriveConstants(resolution decimal.Decimal, ref model.RepeatabilityRecord, variations []model.VariationRecord) (*jobConstants, error) {
	c := dmath.NewCalc()
	res := dmath.FromDec(resolution)

	jc := &jobConstants{
		ratio:    c.Quo(dmath.FromDec(ref.SetTorque), dmath.FromDec(ref.SetPressure)),
		resConst: c.Quo(res, c.Mul(dmath.Ten, dmath.Sqrt3)),
		repConst: c.Quo(c.Mul(res, dmath.Half), dmath.Sqrt3),
		family:   make(map[model.VariationFamily]*apd.Decimal, len(variations)),
	}
	for _, v := range variations {
		jc.family[v.Family] = c.Quo(c.Mul(dmath.FromDec(v.ErrorValue), dmath.Half), dmath.Sqrt3)
	}
	return jc, c.Err()
}

// familyContribution is the family's constant scaled to percent of the
// corrected mean; exactly zero when the family has no recorded error.
func (jc *jobConstants) familyContribution(c *dmath.Calc, f model.VariationFamily, hundredOverMean *apd.Decimal) *apd.Decimal {
	k, ok := jc.family[f]
	if !ok {
		return new(apd.Decimal)
	}
	return c.Mul(k, hundredOverMean)
}

func (e *Engine) computeStep(ctx context.Context, q store.Queries, jc *jobConstants, rec model.RepeatabilityRecord) (*model.UncertaintyBudget, error) {
	c := dmath.NewCalc()
	setTorque := dmath.FromDec(rec.SetTorque)
	corrMean := dmath.FromDec(rec.CorrectedMean)
	hundredOverTorque := c.Quo(dmath.Hundred, setTorque)
	hundredOverMean := c.Quo(dmath.Hundred, corrMean)

	// Pressure-gauge uncertainty: half the matched band percent, expressed
	// against the step torque through the torque/pressure ratio.
	unPG, err := e.unPGPercent(ctx, q, rec)
	if err != nil {
		return nil, err
	}
	deltaSUn := c.Quo(c.Mul(c.Mul(unPG, dmath.Half), jc.ratio), setTorque)

	// Pressure-resolution contribution.
	deltaP := c.Mul(c.Mul(jc.resConst, jc.ratio), hundredOverTorque)

	// Reference-standard uncertainty: half the percent at the matched
	// indicated torque.
	stdUnc, err := e.standardUncPercent(ctx, q, rec)
	if err != nil {
		return nil, err
	}
	wMd := c.Mul(stdUnc, dmath.Half)

	// Repeatability and variation contributions, in percent of the
	// corrected mean.
	wR := c.Mul(jc.repConst, hundredOverMean)
	wRep := jc.familyContribution(c, model.VariationReproducibility, hundredOverMean)
	wOd := jc.familyContribution(c, model.VariationOutputDrive, hundredOverMean)
	wInt := jc.familyContribution(c, model.VariationDriveInterface, hundredOverMean)
	wL := jc.familyContribution(c, model.VariationLoadingPoint, hundredOverMean)

	// Type-A repeatability from the observed standard deviation.
	wRe := new(apd.Decimal)
	if rec.RepeatabilityError.IsPositive() {
		wRe = c.Mul(c.Quo(dmath.FromDec(rec.RepeatabilityError), dmath.Sqrt5), hundredOverMean)
	}

	// Quadrature combination; the gauge-resolution term enters two-sided.
	twoWr := c.Mul(dmath.Two, wR)
	sum := c.Square(wRe)
	sum = c.Add(sum, c.Square(twoWr))
	sum = c.Add(sum, c.Square(wOd))
	sum = c.Add(sum, c.Square(deltaSUn))
	sum = c.Add(sum, c.Square(deltaP))
	sum = c.Add(sum, c.Square(wInt))
	sum = c.Add(sum, c.Square(wMd))
	sum = c.Add(sum, c.Square(wL))
	sum = c.Add(sum, c.Square(wRep))
	combined := c.Sqrt(sum)
	if err := c.Err(); err != nil {
		return nil, err
	}

	var dofRounded *decimal.Decimal
	coverage := defaultCoverage
	if dmath.IsPositive(wRe) {
		dof := c.Quo(c.Mul(dmath.Four, c.Pow4(combined)), c.Pow4(wRe))
		if err := c.Err(); err != nil {
			return nil, err
		}
		rounded := dmath.Round(dof, dmath.PlacesFactor)
		dofRounded = &rounded

		trunc, err := dmath.TruncInt64(dof)
		if err != nil {
			return nil, err
		}
		if trunc <= maxTableDOF {
			coverage, err = e.coverageFactor(ctx, q, rec, trunc)
			if err != nil {
				return nil, err
			}
		}
	}

	expandedPct := c.Mul(dmath.FromDec(coverage), combined)
	expandedTorque := c.Quo(c.Mul(expandedPct, setTorque), dmath.Hundred)

	meanErr := c.Abs(dmath.FromDec(rec.AvgMeasurementError))

	maxErrPct, err := e.maxErrorPercent(ctx, q, rec)
	if err != nil {
		return nil, err
	}

	cmcPct, err := e.cmcPercent(ctx, q, rec)
	if err != nil {
		return nil, err
	}
	cmc := c.Quo(c.Mul(cmcPct, setTorque), dmath.Hundred)
	cmcOfReading := c.Mul(c.Quo(cmc, setTorque), dmath.Hundred)

	// Decision value: device error plus mean error plus the larger of the
	// expanded uncertainty and the lab's own capability.
	capability := expandedPct
	if cmcOfReading.Cmp(expandedPct) > 0 {
		capability = cmcOfReading
	}
	final := c.Add(c.Add(maxErrPct, meanErr), capability)
	if err := c.Err(); err != nil {
		return nil, err
	}

	return &model.UncertaintyBudget{
		JobID:         rec.JobID,
		StepPercent:   rec.StepPercent,
		SetTorque:     rec.SetTorque,
		SetPressure:   rec.SetPressure,
		CorrectedMean: rec.CorrectedMean,

		WRe:      dmath.Round(wRe, dmath.PlacesDefault),
		WR:       dmath.Round(wR, dmath.PlacesDefault),
		WRep:     dmath.Round(wRep, dmath.PlacesDefault),
		WOd:      dmath.Round(wOd, dmath.PlacesDefault),
		WInt:     dmath.Round(wInt, dmath.PlacesDefault),
		WL:       dmath.Round(wL, dmath.PlacesDefault),
		DeltaSUn: dmath.Round(deltaSUn, dmath.PlacesDefault),
		DeltaP:   dmath.Round(deltaP, dmath.PlacesDefault),
		WMd:      dmath.Round(wMd, dmath.PlacesDefault),

		CombinedUncertainty: dmath.Round(combined, dmath.PlacesDefault),
		EffectiveDOF:        dofRounded,
		CoverageFactor:      coverage.Round(dmath.PlacesFactor),

		ExpandedUncertaintyPercent: dmath.Round(expandedPct, dmath.PlacesDefault),
		ExpandedUncertaintyTorque:  dmath.Round(expandedTorque, dmath.PlacesDefault),

		MeanMeasurementError: dmath.Round(meanErr, dmath.PlacesDefault),
		MaxDeviceError:       dmath.Round(maxErrPct, dmath.PlacesDefault),
		CMC:                  dmath.Round(cmc, dmath.PlacesDefault),
		CMCOfReadingPercent:  dmath.Round(cmcOfReading, dmath.PlacesDefault),
		FinalValue:           dmath.Round(final, dmath.PlacesDefault),
	}, nil
}

// unPGPercent looks up the pressure-gauge uncertainty percent for the step's
// set pressure, defaulting to 0.1 on a miss.
func (e *Engine) unPGPercent(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord) (*apd.Decimal, error) {
	band, err := q.FindPressureBand(ctx, rec.SetPressure)
	if err != nil {
		return nil, err
	}
	if band != nil {
		return dmath.FromDec(band.UncertaintyPercent), nil
	}
	if err := e.recordFallback(ctx, q, rec, "pressure_uncertainty_bands",
		fmt.Sprintf("set_pressure=%s", rec.SetPressure), defaultUnPGPercent); err != nil {
		return nil, err
	}
	return dmath.FromDec(defaultUnPGPercent), nil
}

// standardUncPercent looks up the reference standard's uncertainty percent
// at the step torque, defaulting to 1.0 when the table is empty.
func (e *Engine) standardUncPercent(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord) (*apd.Decimal, error) {
	pt, err := q.FindStandardUncertaintyPoint(ctx, rec.SetTorque)
	if err != nil {
		return nil, err
	}
	if pt != nil {
		return dmath.FromDec(pt.UncertaintyPercent), nil
	}
	if err := e.recordFallback(ctx, q, rec, "standard_uncertainty_points",
		fmt.Sprintf("set_torque=%s", rec.SetTorque), defaultStdUncPercent); err != nil {
		return nil, err
	}
	return dmath.FromDec(defaultStdUncPercent), nil
}

// coverageFactor reads the t-distribution factor for the truncated degrees
// of freedom, defaulting to 2.000 when the table has no such row.
func (e *Engine) coverageFactor(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord, dof int64) (decimal.Decimal, error) {
	row, err := q.GetTFactor(ctx, dof, tTableAlpha)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if row != nil {
		return row.Factor, nil
	}
	if err := e.recordFallback(ctx, q, rec, "t_distribution",
		fmt.Sprintf("dof=%d;alpha=%s", dof, tTableAlpha), defaultCoverage); err != nil {
		return decimal.Decimal{}, err
	}
	return defaultCoverage, nil
}

func (e *Engine) maxErrorPercent(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord) (*apd.Decimal, error) {
	band, err := q.FindMaxErrorBand(ctx, rec.SetTorque)
	if err != nil {
		return nil, err
	}
	if band != nil {
		return dmath.FromDec(band.MaxErrorPercent), nil
	}
	if err := e.recordFallback(ctx, q, rec, "max_error_bands",
		fmt.Sprintf("set_torque=%s", rec.SetTorque), defaultMaxErrPercent); err != nil {
		return nil, err
	}
	return dmath.FromDec(defaultMaxErrPercent), nil
}

func (e *Engine) cmcPercent(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord) (*apd.Decimal, error) {
	band, err := q.FindCMCBand(ctx, rec.SetTorque)
	if err != nil {
		return nil, err
	}
	if band != nil {
		return dmath.FromDec(band.CMCPercent), nil
	}
	if err := e.recordFallback(ctx, q, rec, "cmc_bands",
		fmt.Sprintf("set_torque=%s", rec.SetTorque), defaultCMCPercent); err != nil {
		return nil, err
	}
	return dmath.FromDec(defaultCMCPercent), nil
}

// recordFallback logs and persists one defaulted lookup. The row commits
// with the budget itself, so certificates built on defaults stay findable.
func (e *Engine) recordFallback(ctx context.Context, q store.Queries, rec model.RepeatabilityRecord, table, key string, used decimal.Decimal) error {
	e.log.Warn("reference lookup fell back to default",
		zap.Int64("job_id", rec.JobID),
		zap.Int("step_percent", rec.StepPercent),
		zap.String("table", table),
		zap.String("lookup_key", key),
		zap.String("default", used.String()),
	)
	step := rec.StepPercent
	return q.InsertFallbackEvent(ctx, model.FallbackEvent{
		JobID:       rec.JobID,
		StepPercent: &step,
		TableName:   table,
		LookupKey:   key,
		DefaultUsed: used,
	})
}
