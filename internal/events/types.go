package events

import "time"

// Event type identifiers carried on outbox entries and queue envelopes.
const (
	TypeAppointmentBooked    = "appointment.booked.v1"
	TypeAppointmentConfirmed = "appointment.confirmed.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
	TypeAppointmentCompleted = "appointment.completed.v1"
	TypeAppointmentNoShow    = "appointment.no_show.v1"
	TypeAppointmentReminder  = "appointment.reminder.v1"
)

type AppointmentBookedV1 struct {
	EventID         string    `json:"event_id"`
	AppointmentID   string    `json:"appointment_id"`
	ProviderID      string    `json:"provider_id"`
	PatientID       string    `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            string    `json:"consultation_kind"`
	BookedAt        time.Time `json:"booked_at"`
}

// AppointmentConfirmedV1 carries the fee so the payments collaborator
// can start collection without calling back into the scheduler.
type AppointmentConfirmedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	FeeCents      int64     `json:"fee_cents"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type AppointmentCancelledV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	CancelledBy   string    `json:"cancelled_by"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

type AppointmentCompletedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	CompletedAt   time.Time `json:"completed_at"`
	CallSeconds   int64     `json:"call_seconds,omitempty"`
}

type AppointmentNoShowV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	MarkedAt      time.Time `json:"marked_at"`
}

type AppointmentReminderV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Kind          string    `json:"consultation_kind"`
	RemindedAt    time.Time `json:"reminded_at"`
}
