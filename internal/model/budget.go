package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UncertaintyBudget is the persisted uncertainty budget of one calibration
// step. Contributor columns are rounded to 8 decimal places, EffectiveDOF
// and CoverageFactor to 3; everything upstream of these values is computed
// at 50-digit precision.
type UncertaintyBudget struct {
	ID          int64 `json:"id"`
	JobID       int64 `json:"job_id"`
	StepPercent int   `json:"step_percent"`

	SetTorque     decimal.Decimal `json:"set_torque"`
	SetPressure   decimal.Decimal `json:"set_pressure"`
	CorrectedMean decimal.Decimal `json:"corrected_mean"`

	// Individual contributors, all in percent of the step torque.
	WRe      decimal.Decimal `json:"w_re"`       // type-A repeatability
	WR       decimal.Decimal `json:"w_r"`        // gauge-resolution repeatability
	WRep     decimal.Decimal `json:"w_rep"`      // reproducibility
	WOd      decimal.Decimal `json:"w_od"`       // output drive variation
	WInt     decimal.Decimal `json:"w_int"`      // drive interface variation
	WL       decimal.Decimal `json:"w_l"`        // loading point variation
	DeltaSUn decimal.Decimal `json:"delta_s_un"` // pressure-gauge uncertainty
	DeltaP   decimal.Decimal `json:"delta_p"`    // pressure-resolution
	WMd      decimal.Decimal `json:"w_md"`       // reference standard uncertainty

	CombinedUncertainty decimal.Decimal  `json:"combined_uncertainty"`
	EffectiveDOF        *decimal.Decimal `json:"effective_dof,omitempty"`
	CoverageFactor      decimal.Decimal  `json:"coverage_factor"`

	ExpandedUncertaintyPercent decimal.Decimal `json:"expanded_uncertainty_percent"`
	ExpandedUncertaintyTorque  decimal.Decimal `json:"expanded_uncertainty_torque"`

	MeanMeasurementError decimal.Decimal `json:"mean_measurement_error"`
	MaxDeviceError       decimal.Decimal `json:"max_device_error"`
	CMC                  decimal.Decimal `json:"cmc"`
	CMCOfReadingPercent  decimal.Decimal `json:"cmc_of_reading_percent"`
	FinalValue           decimal.Decimal `json:"final_value"`

	ComputedAt time.Time `json:"computed_at"`
}

// FallbackEvent records a reference-table miss that was answered with a
// documented default. Not an error, but certificates built on defaulted
// values need to be findable.
type FallbackEvent struct {
	ID          int64           `json:"id"`
	JobID       int64           `json:"job_id"`
	StepPercent *int            `json:"step_percent,omitempty"`
	TableName   string          `json:"table_name"`
	LookupKey   string          `json:"lookup_key"`
	DefaultUsed decimal.Decimal `json:"default_used"`
	CreatedAt   time.Time       `json:"created_at"`
}
