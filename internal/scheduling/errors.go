package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat marks day or clock strings that could not be parsed.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrInvalidRange marks intervals whose end is not after their start.
	ErrInvalidRange = errors.New("end time must be after start time")
	// ErrConflict marks proposals that overlap an existing reservation.
	ErrConflict = errors.New("reservation conflict")
)

// FormatError names the input field that failed normalisation.
type FormatError struct {
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Unwrap allows errors.Is(err, ErrInvalidFormat).
func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

// ConflictError reports the first existing reservation a proposal collides
// with. All holds every clash on the same axis, Existing first.
type ConflictError struct {
	Axis     Axis
	Proposed Reservation
	Existing Reservation
	All      []Reservation
}

func (e *ConflictError) Error() string {
	owner := e.Existing.OwnerName
	if owner == "" {
		owner = e.Existing.OwnerID
	}
	return fmt.Sprintf("%s already booked on %s %s by %s", e.Axis.noun(), e.Existing.Day, e.Existing.Interval, owner)
}

// Unwrap allows errors.Is(err, ErrConflict).
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
