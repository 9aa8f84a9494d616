package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/events"
)

func newSweeperFixture(t *testing.T, now time.Time) (*Sweeper, *serviceFixture) {
	t.Helper()
	f := newServiceFixture(t, WithClock(func() time.Time { return now }))
	sweeper := NewSweeper(f.service, f.repo, nil,
		WithNoShowGrace(30*time.Minute),
		WithReminderLeadTime(24*time.Hour),
		WithSweeperClock(func() time.Time { return now }),
	)
	return sweeper, f
}

// seedConfirmed inserts a confirmed appointment directly, bypassing the
// booking preconditions so tests can place appointments in the past.
func seedConfirmed(t *testing.T, repo *MemoryRepository, id string, start time.Time) {
	t.Helper()
	a := newStoredAppt(id, start)
	a.Status = StatusConfirmed
	if err := repo.CreateIfFree(context.Background(), a); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestSweeper_NoShowPass(t *testing.T) {
	now := serviceClock
	sweeper, f := newSweeperFixture(t, now)

	// "ended" finished well past grace, "in-grace" ended 15 minutes ago,
	// "upcoming" has not started and "pending" was never confirmed.
	seedConfirmed(t, f.repo, "ended", now.Add(-2*time.Hour))
	seedConfirmed(t, f.repo, "in-grace", now.Add(-45*time.Minute))
	seedConfirmed(t, f.repo, "upcoming", now.Add(30*time.Hour))
	pending := newStoredAppt("pending", now.Add(-3*time.Hour))
	if err := f.repo.CreateIfFree(context.Background(), pending); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	sweeper.RunOnce(context.Background())

	got, err := f.repo.GetByID(context.Background(), "ended")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusNoShow {
		t.Errorf("ended appointment status = %q, want no_show", got.Status)
	}

	for _, id := range []string{"in-grace", "upcoming"} {
		a, err := f.repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID %s: %v", id, err)
		}
		if a.Status != StatusConfirmed {
			t.Errorf("%s status = %q, want confirmed untouched", id, a.Status)
		}
	}

	p, _ := f.repo.GetByID(context.Background(), "pending")
	if p.Status != StatusPending {
		t.Errorf("pending status = %q, sweep must only touch confirmed", p.Status)
	}

	if got := len(f.sink.ByType(events.TypeAppointmentNoShow)); got != 1 {
		t.Errorf("no-show events = %d, want 1", got)
	}
}

func TestSweeper_ReminderPass(t *testing.T) {
	now := serviceClock
	sweeper, f := newSweeperFixture(t, now)

	seedConfirmed(t, f.repo, "soon", now.Add(4*time.Hour))
	seedConfirmed(t, f.repo, "far", now.Add(72*time.Hour))
	already := newStoredAppt("already", now.Add(6*time.Hour))
	already.Status = StatusConfirmed
	ts := now.Add(-time.Hour)
	already.RemindedAt = &ts
	if err := f.repo.CreateIfFree(context.Background(), already); err != nil {
		t.Fatalf("seed already: %v", err)
	}

	sweeper.RunOnce(context.Background())

	reminders := f.sink.ByType(events.TypeAppointmentReminder)
	if len(reminders) != 1 {
		t.Fatalf("reminder events = %d, want 1", len(reminders))
	}
	payload := reminders[0].Payload.(events.AppointmentReminderV1)
	if payload.AppointmentID != "soon" {
		t.Errorf("reminded %q, want soon", payload.AppointmentID)
	}

	got, _ := f.repo.GetByID(context.Background(), "soon")
	if got.RemindedAt == nil {
		t.Error("RemindedAt not stamped")
	}

	// A second sweep must not remind again.
	sweeper.RunOnce(context.Background())
	if got := len(f.sink.ByType(events.TypeAppointmentReminder)); got != 1 {
		t.Errorf("reminder events after second sweep = %d, want still 1", got)
	}
}

func TestSweeper_RunOnce_EmptyRepo(t *testing.T) {
	sweeper, f := newSweeperFixture(t, serviceClock)
	sweeper.RunOnce(context.Background())
	if got := len(f.sink.Entries()); got != 0 {
		t.Errorf("events on empty repo = %d, want 0", got)
	}
}
