// Package model holds the domain types of the calibration core. Measured and
// computed quantities are decimal.Decimal so values round-trip through the
// store without binary-float drift.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus represents the lifecycle state of a calibration job.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusSelected   JobStatus = "standards_selected"
	JobStatusCalculated JobStatus = "budget_calculated"
	JobStatusCertified  JobStatus = "certified"
)

// InwardEquipment is the device-under-calibration record created at goods
// inward. The selector reads make/model from here to find the manufacturer
// specification.
type InwardEquipment struct {
	ID        int64           `json:"id"`
	Make      string          `json:"make"`
	Model     string          `json:"model"`
	SerialNo  string          `json:"serial_no"`
	Capacity  decimal.Decimal `json:"capacity"`
	Unit      string          `json:"unit"`
	CreatedAt time.Time       `json:"created_at"`
}

// CalibrationJob identifies one calibration of an inward equipment item.
type CalibrationJob struct {
	ID              int64           `json:"id"`
	InwardEqpID     int64           `json:"inward_eqp_id"`
	CalibrationDate time.Time       `json:"calibration_date"`
	GaugeResolution decimal.Decimal `json:"gauge_resolution"`
	DeviceClass     string          `json:"device_class"`
	Status          JobStatus       `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
