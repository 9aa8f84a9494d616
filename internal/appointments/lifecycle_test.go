package appointments

import (
	"errors"
	"testing"
	"time"
)

var clock = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

func pendingAppt() Appointment {
	return Appointment{
		ID:              "appt-1",
		PatientID:       "pat-1",
		ProviderID:      "prov-1",
		ScheduledAt:     clock.Add(48 * time.Hour),
		DurationMinutes: 30,
		Kind:            KindVideo,
		Status:          StatusPending,
		Version:         1,
	}
}

func confirmedAppt() Appointment {
	a, err := Confirm(pendingAppt(), clock)
	if err != nil {
		panic(err)
	}
	return a
}

func TestConfirm(t *testing.T) {
	a, err := Confirm(pendingAppt(), clock)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if a.Status != StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", a.Status)
	}
	if a.ConfirmedAt == nil || !a.ConfirmedAt.Equal(clock) {
		t.Errorf("ConfirmedAt = %v, want %v", a.ConfirmedAt, clock)
	}
}

func TestConfirm_RejectsNonPending(t *testing.T) {
	for _, status := range []Status{StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow} {
		a := pendingAppt()
		a.Status = status
		if _, err := Confirm(a, clock); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Confirm from %q = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestStartConsultation(t *testing.T) {
	a, err := StartConsultation(confirmedAppt(), clock)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	if a.Status != StatusInProgress {
		t.Errorf("Status = %q, want in_progress", a.Status)
	}
	if a.CallStartedAt == nil {
		t.Error("CallStartedAt not stamped for video consultation")
	}
}

func TestStartConsultation_MessagingSkipsCallStamp(t *testing.T) {
	c := confirmedAppt()
	c.Kind = KindMessaging
	a, err := StartConsultation(c, clock)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	if a.CallStartedAt != nil {
		t.Error("CallStartedAt should not be stamped for messaging")
	}
}

func TestStartConsultation_RejectsPending(t *testing.T) {
	if _, err := StartConsultation(pendingAppt(), clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartConsultation from pending = %v, want ErrInvalidTransition", err)
	}
}

func TestComplete_FromInProgress(t *testing.T) {
	started, err := StartConsultation(confirmedAppt(), clock)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}

	done, err := Complete(started, clock.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
	if done.CallSeconds != 25*60 {
		t.Errorf("CallSeconds = %d, want %d", done.CallSeconds, 25*60)
	}
}

func TestComplete_MessagingFromConfirmed(t *testing.T) {
	c := confirmedAppt()
	c.Kind = KindMessaging
	done, err := Complete(c, clock)
	if err != nil {
		t.Fatalf("Complete messaging from confirmed: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
}

func TestComplete_RealTimeFromConfirmedRejected(t *testing.T) {
	if _, err := Complete(confirmedAppt(), clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete video from confirmed = %v, want ErrInvalidTransition", err)
	}
}

func TestComplete_FromPendingRejected(t *testing.T) {
	if _, err := Complete(pendingAppt(), clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete from pending = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel_PatientWithNotice(t *testing.T) {
	a := confirmedAppt() // scheduled 48h out
	actor := Actor{ID: "pat-1", Role: RolePatient}

	got, err := Cancel(a, actor, "feeling better", DefaultCancellationPolicy(), clock)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if got.CancelledBy != RolePatient {
		t.Errorf("CancelledBy = %q, want patient", got.CancelledBy)
	}
	if got.CancellationReason != "feeling better" {
		t.Errorf("CancellationReason = %q", got.CancellationReason)
	}
}

func TestCancel_PatientInsideNoticeWindow(t *testing.T) {
	a := confirmedAppt()
	a.ScheduledAt = clock.Add(20 * time.Hour) // inside the 24h window

	_, err := Cancel(a, Actor{ID: "pat-1", Role: RolePatient}, "conflict came up", DefaultCancellationPolicy(), clock)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Cancel inside notice = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel_AdminBypassesNotice(t *testing.T) {
	a := confirmedAppt()
	a.ScheduledAt = clock.Add(20 * time.Hour)

	got, err := Cancel(a, Actor{ID: "adm-1", Role: RoleAdmin}, "provider emergency", DefaultCancellationPolicy(), clock)
	if err != nil {
		t.Fatalf("Cancel by admin inside notice: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
}

func TestCancel_ProviderBypassesNotice(t *testing.T) {
	a := confirmedAppt()
	a.ScheduledAt = clock.Add(1 * time.Hour)

	if _, err := Cancel(a, Actor{ID: "prov-1", Role: RoleProvider}, "double booked", DefaultCancellationPolicy(), clock); err != nil {
		t.Fatalf("Cancel by provider inside notice: %v", err)
	}
}

func TestCancel_RequiresReason(t *testing.T) {
	_, err := Cancel(confirmedAppt(), Actor{ID: "adm-1", Role: RoleAdmin}, "   ", DefaultCancellationPolicy(), clock)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel without reason = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel_RejectsTerminal(t *testing.T) {
	for _, status := range []Status{StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow} {
		a := confirmedAppt()
		a.Status = status
		if _, err := Cancel(a, Actor{Role: RoleAdmin}, "x", DefaultCancellationPolicy(), clock); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Cancel from %q = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestMarkNoShow(t *testing.T) {
	a := confirmedAppt()
	a.ScheduledAt = clock.Add(-time.Hour)

	got, err := MarkNoShow(a, clock)
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if got.Status != StatusNoShow {
		t.Errorf("Status = %q, want no_show", got.Status)
	}
}

func TestMarkNoShow_BeforeScheduledTime(t *testing.T) {
	if _, err := MarkNoShow(confirmedAppt(), clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkNoShow before scheduled time = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkNoShow_RejectsPending(t *testing.T) {
	a := pendingAppt()
	a.ScheduledAt = clock.Add(-time.Hour)
	if _, err := MarkNoShow(a, clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkNoShow on pending = %v, want ErrInvalidTransition", err)
	}
}

func TestReschedule(t *testing.T) {
	newStart := clock.Add(72 * time.Hour)
	a := confirmedAppt()
	remindedAt := clock
	a.RemindedAt = &remindedAt

	got, err := Reschedule(a, newStart, clock)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !got.ScheduledAt.Equal(newStart) {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, newStart)
	}
	if got.RemindedAt != nil {
		t.Error("RemindedAt should reset so the new time gets its own reminder")
	}
}

func TestReschedule_RejectsPast(t *testing.T) {
	if _, err := Reschedule(confirmedAppt(), clock.Add(-time.Hour), clock); !errors.Is(err, ErrPastScheduledAt) {
		t.Errorf("Reschedule to the past = %v, want ErrPastScheduledAt", err)
	}
}

func TestReschedule_RejectsTerminal(t *testing.T) {
	a := confirmedAppt()
	a.Status = StatusCompleted
	if _, err := Reschedule(a, clock.Add(72*time.Hour), clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reschedule completed = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionErrorsWrapTaxonomy(t *testing.T) {
	_, err := Confirm(Appointment{Status: StatusCompleted}, clock)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
