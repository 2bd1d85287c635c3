package model

import "github.com/shopspring/decimal"

// GaugeResolution lists a permissible pressure-gauge resolution.
type GaugeResolution struct {
	ID         int64           `json:"id"`
	Resolution decimal.Decimal `json:"resolution"`
	IsActive   bool            `json:"is_active"`
}

// PressureUncertaintyBand is one row of the Un-PG table: the pressure-gauge
// uncertainty percent applying to set pressures inside [PressureMin,
// PressureMax].
type PressureUncertaintyBand struct {
	ID                 int64           `json:"id"`
	PressureMin        decimal.Decimal `json:"pressure_min"`
	PressureMax        decimal.Decimal `json:"pressure_max"`
	UncertaintyPercent decimal.Decimal `json:"uncertainty_percent"`
	IsActive           bool            `json:"is_active"`
}

// StandardUncertaintyPoint relates an indicated torque to the reference
// standard's uncertainty percent at that torque. The engine matches the
// smallest indicated torque at or above the step torque.
type StandardUncertaintyPoint struct {
	ID                 int64           `json:"id"`
	IndicatedTorque    decimal.Decimal `json:"indicated_torque"`
	UncertaintyPercent decimal.Decimal `json:"uncertainty_percent"`
	IsActive           bool            `json:"is_active"`
}

// MaxErrorBand is the maximum permissible device error percent over a torque
// range.
type MaxErrorBand struct {
	ID              int64           `json:"id"`
	TorqueMin       decimal.Decimal `json:"torque_min"`
	TorqueMax       decimal.Decimal `json:"torque_max"`
	MaxErrorPercent decimal.Decimal `json:"max_error_percent"`
	IsActive        bool            `json:"is_active"`
}

// CMCBand is the lab's calibration-and-measurement-capability percent over a
// half-open torque range [TorqueMin, TorqueMax).
type CMCBand struct {
	ID         int64           `json:"id"`
	TorqueMin  decimal.Decimal `json:"torque_min"`
	TorqueMax  decimal.Decimal `json:"torque_max"`
	CMCPercent decimal.Decimal `json:"cmc_percent"`
	IsActive   bool            `json:"is_active"`
}

// TDistributionRow is one row of the two-sided Student-t table used to pick
// the coverage factor for a truncated effective degrees of freedom.
type TDistributionRow struct {
	ID               int64           `json:"id"`
	DegreesOfFreedom int             `json:"degrees_of_freedom"`
	Alpha            decimal.Decimal `json:"alpha"`
	Factor           decimal.Decimal `json:"factor"`
	IsActive         bool            `json:"is_active"`
}
