package appointments

import (
	"fmt"
	"strings"
	"time"
)

// CancellationPolicy is the minimum-notice rule applied to ordinary
// cancellations. Roles in BypassNotice may cancel inside the window;
// by default that is the provider and administrators, while patients
// are bound by the notice period.
type CancellationPolicy struct {
	MinNotice    time.Duration
	BypassNotice map[Role]bool
}

// DefaultCancellationPolicy returns the 24-hour notice policy with
// provider and admin bypass.
func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		MinNotice: 24 * time.Hour,
		BypassNotice: map[Role]bool{
			RoleProvider: true,
			RoleAdmin:    true,
		},
	}
}

// The transition functions below are pure: they take an appointment
// snapshot and return the updated copy, leaving persistence and event
// emission to the service. Version is bumped by the repository on write.

// Confirm moves a pending appointment to confirmed.
func Confirm(a Appointment, now time.Time) (Appointment, error) {
	if a.Status != StatusPending {
		return a, transitionError(a.Status, "confirm", "only pending appointments can be confirmed")
	}
	ts := now.UTC()
	a.Status = StatusConfirmed
	a.ConfirmedAt = &ts
	return a, nil
}

// StartConsultation moves a confirmed appointment to in-progress.
// Real-time kinds stamp the call start so Complete can compute elapsed
// duration.
func StartConsultation(a Appointment, now time.Time) (Appointment, error) {
	if a.Status != StatusConfirmed {
		return a, transitionError(a.Status, "start", "only confirmed appointments can be started")
	}
	a.Status = StatusInProgress
	if a.Kind.RealTime() {
		ts := now.UTC()
		a.CallStartedAt = &ts
	}
	return a, nil
}

// Complete finishes an in-progress appointment. Asynchronous kinds may
// complete directly from confirmed without an explicit start.
func Complete(a Appointment, now time.Time) (Appointment, error) {
	switch a.Status {
	case StatusInProgress:
	case StatusConfirmed:
		if a.Kind.RealTime() {
			return a, transitionError(a.Status, "complete", "real-time consultations must be started before completion")
		}
	default:
		return a, transitionError(a.Status, "complete", "only confirmed or in-progress appointments can be completed")
	}
	ts := now.UTC()
	a.Status = StatusCompleted
	a.CompletedAt = &ts
	if a.CallStartedAt != nil {
		a.CallSeconds = int64(ts.Sub(*a.CallStartedAt) / time.Second)
	}
	return a, nil
}

// Cancel terminates a pending or confirmed appointment. A non-empty
// reason is required, and actors without notice bypass must cancel at
// least policy.MinNotice before the scheduled time.
func Cancel(a Appointment, actor Actor, reason string, policy CancellationPolicy, now time.Time) (Appointment, error) {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return a, transitionError(a.Status, "cancel", "only pending or confirmed appointments can be cancelled")
	}
	if strings.TrimSpace(reason) == "" {
		return a, transitionError(a.Status, "cancel", "a cancellation reason is required")
	}
	if !policy.BypassNotice[actor.Role] {
		if now.Add(policy.MinNotice).After(a.ScheduledAt) {
			return a, transitionError(a.Status, "cancel",
				fmt.Sprintf("cancellation requires at least %s notice", policy.MinNotice))
		}
	}
	ts := now.UTC()
	a.Status = StatusCancelled
	a.CancelledAt = &ts
	a.CancelledBy = actor.Role
	a.CancellationReason = strings.TrimSpace(reason)
	return a, nil
}

// MarkNoShow records that the patient did not attend a confirmed
// appointment. Permitted only once the scheduled time has passed.
func MarkNoShow(a Appointment, now time.Time) (Appointment, error) {
	if a.Status != StatusConfirmed {
		return a, transitionError(a.Status, "no-show", "only confirmed appointments can be marked no-show")
	}
	if !now.After(a.ScheduledAt) {
		return a, transitionError(a.Status, "no-show", "the scheduled time has not passed yet")
	}
	a.Status = StatusNoShow
	return a, nil
}

// Reschedule moves a pending or confirmed appointment to a new future
// instant. The slot-conflict check happens in the repository under the
// same serialization discipline as booking.
func Reschedule(a Appointment, newStart time.Time, now time.Time) (Appointment, error) {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return a, transitionError(a.Status, "reschedule", "only pending or confirmed appointments can be rescheduled")
	}
	if !newStart.After(now) {
		return a, ErrPastScheduledAt
	}
	a.ScheduledAt = newStart.UTC()
	a.RemindedAt = nil
	return a, nil
}

func transitionError(from Status, op, guard string) error {
	return fmt.Errorf("%w: cannot %s appointment in state %q: %s", ErrInvalidTransition, op, from, guard)
}
