package utils

import (
	"errors"
	"fmt"
)

// ErrorRecordNotFound is the sentinel for lookups that came back empty.
// Handlers map it to 404.
var ErrorRecordNotFound = errors.New("record not found")

// ValidationError reports a rejected input field. Handlers map it to 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError reports a lifecycle transition the state machine does
// not allow. Statuses are plain strings here so this package stays free of
// model imports. Handlers map it to 409.
type InvalidStateError struct {
	Current   string
	Requested string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.Current, e.Requested)
}

// DuplicateFIRNumberError reports a fir_number collision that survived
// regeneration. Handlers map it to 409.
type DuplicateFIRNumberError struct {
	FIRNumber string
}

func (e *DuplicateFIRNumberError) Error() string {
	return fmt.Sprintf("fir number already exists: %s", e.FIRNumber)
}

// PredictionServiceError reports a failure from the external prediction
// service that is NOT a connectivity problem (those degrade silently).
// Only the standalone predict endpoint surfaces it, as 502.
type PredictionServiceError struct {
	Status int
	Msg    string
}

func (e *PredictionServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("prediction service returned %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("prediction service: %s", e.Msg)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInvalidStateError(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}

func IsDuplicateFIRNumberError(err error) bool {
	var de *DuplicateFIRNumberError
	return errors.As(err, &de)
}

func IsPredictionServiceError(err error) bool {
	var pe *PredictionServiceError
	return errors.As(err, &pe)
}
