package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StepPercents lists the tested calibration steps as percentages of device
// capacity, in processing order.
var StepPercents = []int{20, 60, 100}

// RepeatabilityRecord holds one tested step of a job: the set pressure and
// torque, the raw gauge readings and the statistics derived from them. The
// budget engine treats these rows as read-only input.
type RepeatabilityRecord struct {
	ID          int64 `json:"id"`
	JobID       int64 `json:"job_id"`
	StepPercent int   `json:"step_percent"`

	SetPressure decimal.Decimal   `json:"set_pressure"`
	SetTorque   decimal.Decimal   `json:"set_torque"`
	Readings    []decimal.Decimal `json:"readings"`

	MeanReading       decimal.Decimal `json:"mean_reading"`
	CorrectedStandard decimal.Decimal `json:"corrected_standard"`
	CorrectedMean     decimal.Decimal `json:"corrected_mean"`
	DeviationPercent  decimal.Decimal `json:"deviation_percent"`

	// RepeatabilityError is b_re, the experimental standard deviation of the
	// readings; AvgMeasurementError is a_s, the mean relative measurement
	// error of the step. Both feed the uncertainty budget.
	RepeatabilityError  decimal.Decimal `json:"repeatability_error"`
	AvgMeasurementError decimal.Decimal `json:"avg_measurement_error"`

	CreatedAt time.Time `json:"created_at"`
}

// VariationFamily names a geometric or sequence variation test.
type VariationFamily string

const (
	VariationReproducibility VariationFamily = "reproducibility"
	VariationOutputDrive     VariationFamily = "output_drive"
	VariationDriveInterface  VariationFamily = "drive_interface"
	VariationLoadingPoint    VariationFamily = "loading_point"
)

// VariationFamilies lists all families in budget order.
var VariationFamilies = []VariationFamily{
	VariationReproducibility,
	VariationOutputDrive,
	VariationDriveInterface,
	VariationLoadingPoint,
}

// Valid reports whether f names a known variation family.
func (f VariationFamily) Valid() bool {
	switch f {
	case VariationReproducibility, VariationOutputDrive, VariationDriveInterface, VariationLoadingPoint:
		return true
	}
	return false
}

// VariationRecord holds the outcome of one variation test: the torque the
// test targeted and the max-minus-min error observed across positions or
// sequences. The engine uses the latest record per family.
type VariationRecord struct {
	ID           int64           `json:"id"`
	JobID        int64           `json:"job_id"`
	Family       VariationFamily `json:"family"`
	TargetTorque decimal.Decimal `json:"target_torque"`
	ErrorValue   decimal.Decimal `json:"error_value"`
	RecordedAt   time.Time       `json:"recorded_at"`
}
