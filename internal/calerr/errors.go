// Package calerr defines the error taxonomy for the calibration core.
// Configuration and precondition failures abort an operation with nothing
// written; callers use the IsX helpers to map them to exit codes or HTTP
// statuses.
package calerr

import (
	"errors"
	"fmt"
)

// ConfigMissingError indicates required reference data is absent: no active
// manufacturer spec, nomenclature range, or qualifying master standard for
// the device under calibration.
type ConfigMissingError struct {
	Table  string
	Detail string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("missing reference configuration in %s: %s", e.Table, e.Detail)
}

// NewConfigMissing builds a ConfigMissingError for the given reference table.
func NewConfigMissing(table, format string, args ...any) *ConfigMissingError {
	return &ConfigMissingError{Table: table, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigMissing reports whether any error in the chain is a ConfigMissingError.
func IsConfigMissing(err error) bool {
	var ce *ConfigMissingError
	return errors.As(err, &ce)
}

// PreconditionError indicates the job is not ready for the requested
// operation: gauge resolution unset, no repeatability records, or a zero
// reference pressure.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition not met: " + e.Reason
}

// NewPrecondition builds a PreconditionError.
func NewPrecondition(format string, args ...any) *PreconditionError {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether any error in the chain is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether any error in the chain is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
