package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TorqueTransducerNomenclature is the nomenclature string identifying torque
// reference ranges; everything else is treated as a pressure-side
// nomenclature by the selector.
const TorqueTransducerNomenclature = "TORQUE TRANSDUCER"

// NomenclatureRange maps a reference-standard nomenclature to the numeric
// range it certifies.
type NomenclatureRange struct {
	ID           int64           `json:"id"`
	Nomenclature string          `json:"nomenclature"`
	RangeMin     decimal.Decimal `json:"range_min"`
	RangeMax     decimal.Decimal `json:"range_max"`
	Unit         string          `json:"unit"`
	IsActive     bool            `json:"is_active"`
}

// IsTorque reports whether the range belongs to the torque-transducer
// nomenclature.
func (n NomenclatureRange) IsTorque() bool {
	return n.Nomenclature == TorqueTransducerNomenclature
}

// MasterStandard is a live reference-standard record: the instrument a lab
// measurement traces back to, with its own calibration pedigree.
type MasterStandard struct {
	ID                  int64           `json:"id"`
	NomenclatureRangeID int64           `json:"nomenclature_range_id"`
	Nomenclature        string          `json:"nomenclature"`
	Manufacturer        string          `json:"manufacturer"`
	IdentificationNo    string          `json:"identification_no"`
	TraceabilityLab     string          `json:"traceability_lab"`
	CertificateNo       string          `json:"certificate_no"`
	ValidUntil          time.Time       `json:"valid_until"`
	UncertaintyValue    decimal.Decimal `json:"uncertainty_value"`
	UncertaintyUnit     string          `json:"uncertainty_unit"`
	Resolution          decimal.Decimal `json:"resolution"`
	Accuracy            decimal.Decimal `json:"accuracy"`
	RangeMin            decimal.Decimal `json:"range_min"`
	RangeMax            decimal.Decimal `json:"range_max"`
	Unit                string          `json:"unit"`
	IsActive            bool            `json:"is_active"`
}

// ManufacturerSpec is the torque/pressure curve a wrench model is rated for.
// The 20/60/100 columns are the spec values at those percentages of
// capacity.
type ManufacturerSpec struct {
	ID          int64           `json:"id"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	Capacity    decimal.Decimal `json:"capacity"`
	Torque20    decimal.Decimal `json:"torque_20"`
	Torque60    decimal.Decimal `json:"torque_60"`
	Torque100   decimal.Decimal `json:"torque_100"`
	Pressure20  decimal.Decimal `json:"pressure_20"`
	Pressure60  decimal.Decimal `json:"pressure_60"`
	Pressure100 decimal.Decimal `json:"pressure_100"`
	IsActive    bool            `json:"is_active"`
}

// StandardSnapshot is the frozen copy of a master standard taken when
// standards are selected for a job. Certificates cite these rows, so they
// must stay stable even if the live master_standards table is edited later.
type StandardSnapshot struct {
	ID               int64           `json:"id"`
	JobID            int64           `json:"job_id"`
	SelectionOrder   int             `json:"selection_order"`
	MasterStandardID int64           `json:"master_standard_id"`
	Nomenclature     string          `json:"nomenclature"`
	RangeMin         decimal.Decimal `json:"range_min"`
	RangeMax         decimal.Decimal `json:"range_max"`
	Unit             string          `json:"unit"`
	Manufacturer     string          `json:"manufacturer"`
	IdentificationNo string          `json:"identification_no"`
	TraceabilityLab  string          `json:"traceability_lab"`
	CertificateNo    string          `json:"certificate_no"`
	ValidUntil       time.Time       `json:"valid_until"`
	UncertaintyValue decimal.Decimal `json:"uncertainty_value"`
	UncertaintyUnit  string          `json:"uncertainty_unit"`
	Resolution       decimal.Decimal `json:"resolution"`
	Accuracy         decimal.Decimal `json:"accuracy"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SnapshotFrom freezes the metrology-relevant fields of a master standard.
func SnapshotFrom(jobID int64, order int, ms MasterStandard, rng NomenclatureRange) StandardSnapshot {
	return StandardSnapshot{
		JobID:            jobID,
		SelectionOrder:   order,
		MasterStandardID: ms.ID,
		Nomenclature:     ms.Nomenclature,
		RangeMin:         rng.RangeMin,
		RangeMax:         rng.RangeMax,
		Unit:             rng.Unit,
		Manufacturer:     ms.Manufacturer,
		IdentificationNo: ms.IdentificationNo,
		TraceabilityLab:  ms.TraceabilityLab,
		CertificateNo:    ms.CertificateNo,
		ValidUntil:       ms.ValidUntil,
		UncertaintyValue: ms.UncertaintyValue,
		UncertaintyUnit:  ms.UncertaintyUnit,
		Resolution:       ms.Resolution,
		Accuracy:         ms.Accuracy,
	}
}
