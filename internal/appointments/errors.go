package appointments

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure of the booking or lifecycle surface wraps
// exactly one of the category errors so callers can branch with errors.Is.
var (
	// ErrInvalidRequest covers malformed or out-of-range input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrScheduleUnavailable means the provider's declared schedule is not
	// open at the requested time. Callers should re-query available slots.
	ErrScheduleUnavailable = errors.New("provider schedule is not open at the requested time")

	// ErrSlotConflict means the requested interval overlaps an existing
	// active appointment.
	ErrSlotConflict = errors.New("requested slot conflicts with an existing appointment")

	// ErrInvalidTransition is a lifecycle guard failure.
	ErrInvalidTransition = errors.New("invalid appointment transition")

	// ErrConcurrencyConflict is an optimistic-lock failure. Safe to retry a
	// bounded number of times.
	ErrConcurrencyConflict = errors.New("appointment was modified concurrently")

	// ErrAppointmentNotFound is returned when the appointment does not exist.
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Validation details, all wrapping ErrInvalidRequest.
var (
	ErrMissingPatient     = fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	ErrMissingProvider    = fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	ErrMissingScheduledAt = fmt.Errorf("%w: scheduled_at is required", ErrInvalidRequest)
	ErrUnknownKind        = fmt.Errorf("%w: unknown consultation kind", ErrInvalidRequest)
	ErrInvalidDuration    = fmt.Errorf("%w: duration must not be negative", ErrInvalidRequest)
	ErrInvalidFee         = fmt.Errorf("%w: fee must not be negative", ErrInvalidRequest)
	ErrPastScheduledAt    = fmt.Errorf("%w: scheduled_at must be in the future", ErrInvalidRequest)
	ErrKindNotOffered     = fmt.Errorf("%w: provider does not offer this consultation kind", ErrInvalidRequest)
	ErrNoSchedule         = fmt.Errorf("%w: provider has no published schedule", ErrInvalidRequest)
)
