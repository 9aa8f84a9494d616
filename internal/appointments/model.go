// Package appointments implements the appointment lifecycle, conflict
// detection and the booking orchestration on top of a provider's
// declared schedule.
package appointments

import (
	"strings"
	"time"
)

// Status is an appointment's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active reports whether the appointment still occupies its time slot
// for conflict purposes.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusInProgress
}

// Kind is the consultation delivery mode.
type Kind string

const (
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindInPerson  Kind = "in_person"
	KindMessaging Kind = "messaging"
)

// RealTime reports whether the consultation happens live at the
// scheduled time. Messaging consultations are asynchronous and may be
// completed directly from confirmed.
func (k Kind) RealTime() bool {
	return k != KindMessaging
}

// Valid reports whether k names a known consultation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindAudio, KindInPerson, KindMessaging:
		return true
	}
	return false
}

// Role identifies who is acting on an appointment. The caller is trusted
// to have authenticated the actor; this core only applies role policy.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is an authenticated party performing a lifecycle operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Appointment is a booked consultation. Created only through the
// booking service and mutated only via lifecycle transitions; terminal
// rows are never deleted.
type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	ProviderID      string    `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            Kind      `json:"consultation_kind"`
	Status          Status    `json:"status"`
	FeeCents        int64     `json:"fee_cents"`

	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CallStartedAt *time.Time `json:"call_started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	RemindedAt    *time.Time `json:"reminded_at,omitempty"`

	CancelledBy        Role   `json:"cancelled_by,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CallSeconds        int64  `json:"call_seconds,omitempty"`

	// Version supports optimistic concurrency on lifecycle updates.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the appointment length.
func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// End returns the exclusive end instant of the appointment interval.
func (a *Appointment) End() time.Time {
	return a.ScheduledAt.Add(a.Duration())
}

// BookRequest is the input to the booking orchestrator.
type BookRequest struct {
	PatientID       string    `json:"patient_id"`
	ProviderID      string    `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            Kind      `json:"consultation_kind"`
	FeeCents        int64     `json:"fee_cents"`
}

// Validate rejects structurally malformed requests before any state is touched.
func (r *BookRequest) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return ErrMissingPatient
	}
	if strings.TrimSpace(r.ProviderID) == "" {
		return ErrMissingProvider
	}
	if r.ScheduledAt.IsZero() {
		return ErrMissingScheduledAt
	}
	if !r.Kind.Valid() {
		return ErrUnknownKind
	}
	if r.DurationMinutes < 0 {
		return ErrInvalidDuration
	}
	if r.FeeCents < 0 {
		return ErrInvalidFee
	}
	return nil
}
