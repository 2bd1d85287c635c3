// Package readings ingests the test data a calibration job is budgeted
// from: per-step repeatability readings and the geometric variation tests.
// Derived means and deviations are computed in decimal so the stored inputs
// of the budget chain carry no binary-float drift; spread statistics (the
// experimental standard deviation, max-minus-min) come from the stats
// library and are rounded at 8 places before storage.
package readings

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/calerr"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/dmath"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/store"
)

// readingsPerStep is the number of gauge readings taken at each step; the
// budget engine's √5 divisor on the repeatability spread assumes it.
const readingsPerStep = 5

// minObservations is the smallest variation series a max-minus-min statistic
// is meaningful for.
const minObservations = 2

// Recorder validates and persists test data.
type Recorder struct {
	store store.Store
	log   *zap.Logger
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{
		store: st,
		log:   zap.L().With(zap.String("component", "readings")),
	}
}

// RepeatabilityInput is one tested step: the set point and the raw gauge
// readings. CorrectedStandard is the reference value from the standard's
// certificate at this set point; it defaults to the set torque.
type RepeatabilityInput struct {
	JobID             int64
	StepPercent       int
	SetPressure       decimal.Decimal
	SetTorque         decimal.Decimal
	CorrectedStandard decimal.Decimal
	Readings          []decimal.Decimal
}

// RecordRepeatability computes the step statistics and upserts the record
// for (job, step). A zero set torque is stored as a degenerate row with zero
// derived values; the budget engine skips it.
func (r *Recorder) RecordRepeatability(ctx context.Context, in RepeatabilityInput) (*model.RepeatabilityRecord, error) {
	job, err := r.store.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(model.StepPercents, in.StepPercent) {
		return nil, calerr.NewPrecondition("step percent %d is not one of %v", in.StepPercent, model.StepPercents)
	}
	if len(in.Readings) != readingsPerStep {
		return nil, calerr.NewPrecondition("step %d%% needs %d readings, got %d",
			in.StepPercent, readingsPerStep, len(in.Readings))
	}

	if job.GaugeResolution.IsPositive() {
		res, err := r.store.LookupGaugeResolution(ctx, job.GaugeResolution)
		if err != nil {
			return nil, err
		}
		if res == nil {
			r.log.Warn("gauge resolution not in reference list",
				zap.Int64("job_id", in.JobID),
				zap.String("resolution", job.GaugeResolution.String()),
			)
		}
	}

	c := dmath.NewCalc()
	sum := new(apd.Decimal)
	for _, rd := range in.Readings {
		sum = c.Add(sum, dmath.FromDec(rd))
	}
	mean := c.Quo(sum, dmath.Five)

	correctedStd := in.CorrectedStandard
	if correctedStd.IsZero() {
		correctedStd = in.SetTorque
	}

	// The corrected mean scales the observed mean onto the standard's
	// certified value; its deviation from the set torque is also the mean
	// relative measurement error, because the correction is one multiplier
	// applied to every reading.
	correctedMean := new(apd.Decimal)
	deviation := new(apd.Decimal)
	if in.SetTorque.IsPositive() {
		setTorque := dmath.FromDec(in.SetTorque)
		correctedMean = c.Quo(c.Mul(mean, dmath.FromDec(correctedStd)), setTorque)
		deviation = c.Quo(c.Mul(c.Sub(correctedMean, setTorque), dmath.Hundred), setTorque)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	bRe, err := sampleStdDev(in.Readings)
	if err != nil {
		return nil, err
	}

	rec := model.RepeatabilityRecord{
		JobID:               in.JobID,
		StepPercent:         in.StepPercent,
		SetPressure:         in.SetPressure,
		SetTorque:           in.SetTorque,
		Readings:            in.Readings,
		MeanReading:         dmath.Round(mean, dmath.PlacesDefault),
		CorrectedStandard:   correctedStd,
		CorrectedMean:       dmath.Round(correctedMean, dmath.PlacesDefault),
		DeviationPercent:    dmath.Round(deviation, dmath.PlacesDefault),
		RepeatabilityError:  bRe,
		AvgMeasurementError: dmath.Round(deviation, dmath.PlacesDefault),
	}
	stored, err := r.store.UpsertRepeatabilityRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	r.log.Info("repeatability recorded",
		zap.Int64("job_id", in.JobID),
		zap.Int("step_percent", in.StepPercent),
		zap.String("corrected_mean", stored.CorrectedMean.String()),
		zap.String("b_re", stored.RepeatabilityError.String()),
	)
	return stored, nil
}

// VariationInput is one geometric or sequence variation test: the indicated
// torques observed across positions or mounting sequences.
type VariationInput struct {
	JobID        int64
	Family       model.VariationFamily
	TargetTorque decimal.Decimal
	Observations []decimal.Decimal
}

// RecordVariation reduces the observations to their max-minus-min error and
// appends a variation record; the budget engine uses the latest record per
// family.
func (r *Recorder) RecordVariation(ctx context.Context, in VariationInput) (*model.VariationRecord, error) {
	if !in.Family.Valid() {
		return nil, calerr.NewPrecondition("unknown variation family %q", in.Family)
	}
	if len(in.Observations) < minObservations {
		return nil, calerr.NewPrecondition("variation %s needs at least %d observations, got %d",
			in.Family, minObservations, len(in.Observations))
	}
	if _, err := r.store.GetJob(ctx, in.JobID); err != nil {
		return nil, err
	}

	errVal, err := spread(in.Observations)
	if err != nil {
		return nil, err
	}

	rec, err := r.store.InsertVariationRecord(ctx, model.VariationRecord{
		JobID:        in.JobID,
		Family:       in.Family,
		TargetTorque: in.TargetTorque,
		ErrorValue:   errVal,
		RecordedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("variation recorded",
		zap.Int64("job_id", in.JobID),
		zap.String("family", string(in.Family)),
		zap.String("error_value", rec.ErrorValue.String()),
	)
	return rec, nil
}

// sampleStdDev is the experimental standard deviation of the readings
// (n-1 denominator), rounded for storage.
func sampleStdDev(readings []decimal.Decimal) (decimal.Decimal, error) {
	sd, err := stats.StandardDeviationSample(toFloats(readings))
	if err != nil {
		return decimal.Decimal{}, eris.Wrap(err, "readings: standard deviation")
	}
	return decimal.NewFromFloat(sd).Round(dmath.PlacesDefault), nil
}

// spread is the max-minus-min of the observations, rounded for storage.
func spread(observations []decimal.Decimal) (decimal.Decimal, error) {
	floats := toFloats(observations)
	max, err := stats.Max(floats)
	if err != nil {
		return decimal.Decimal{}, eris.Wrap(err, "readings: max")
	}
	min, err := stats.Min(floats)
	if err != nil {
		return decimal.Decimal{}, eris.Wrap(err, "readings: min")
	}
	return decimal.NewFromFloat(max - min).Round(dmath.PlacesDefault), nil
}

func toFloats(values []decimal.Decimal) []float64 {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = v.InexactFloat64()
	}
	return floats
}
