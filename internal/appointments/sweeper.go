package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const sweepBatchSize = 100

// Sweeper runs the periodic maintenance passes: marking missed
// confirmed appointments as no-shows once a grace period after their
// end has elapsed, and emitting one reminder per appointment inside
// the reminder lead window.
type Sweeper struct {
	service  *Service
	repo     Repository
	grace    time.Duration
	leadTime time.Duration
	interval time.Duration
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// SweeperOption customizes a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the polling interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNoShowGrace sets how long after an appointment's end the no-show
// sweep waits before acting.
func WithNoShowGrace(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithReminderLeadTime sets how far ahead of the scheduled time
// reminders go out.
func WithReminderLeadTime(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.leadTime = d
		}
	}
}

// WithSweeperMetrics attaches sweep metrics.
func WithSweeperMetrics(m *metrics.BookingMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweeperClock overrides the time source for tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper over the given service and repository.
func NewSweeper(service *Service, repo Repository, logger *logging.Logger, opts ...SweeperOption) *Sweeper {
	if service == nil {
		panic("appointments: service required")
	}
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		service:  service,
		repo:     repo,
		grace:    30 * time.Minute,
		leadTime: 24 * time.Hour,
		interval: 5 * time.Minute,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls until the context is cancelled. Run it in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("appointment sweeper started",
		"interval", s.interval,
		"no_show_grace", s.grace,
		"reminder_lead_time", s.leadTime)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("appointment sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one no-show pass and one reminder pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.sweepNoShows(ctx)
	s.sweepReminders(ctx)
}

func (s *Sweeper) sweepNoShows(ctx context.Context) {
	now := s.now().UTC()
	candidates, err := s.repo.ListNoShowCandidates(ctx, now.Add(-s.grace), sweepBatchSize)
	if err != nil {
		s.logger.Error("list no-show candidates", "error", err)
		return
	}

	marked := 0
	for i := range candidates {
		// Re-applies the lifecycle guard under the optimistic loop, so a
		// patient confirming or cancelling mid-sweep wins the race.
		_, err := s.service.MarkNoShow(ctx, candidates[i].ID)
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAppointmentNotFound):
			// Already moved on by someone else.
		default:
			s.logger.Error("mark no-show", "appointment_id", candidates[i].ID, "error", err)
		}
	}
	if marked > 0 {
		s.metrics.ObserveSweep("no_show", marked)
		s.logger.Info("no-show sweep complete", "marked", marked)
	}
}

func (s *Sweeper) sweepReminders(ctx context.Context) {
	now := s.now().UTC()
	candidates, err := s.repo.ListReminderCandidates(ctx, now, now.Add(s.leadTime), sweepBatchSize)
	if err != nil {
		s.logger.Error("list reminder candidates", "error", err)
		return
	}

	sent := 0
	for i := range candidates {
		if s.remind(ctx, &candidates[i], now) {
			sent++
		}
	}
	if sent > 0 {
		s.metrics.ObserveSweep("reminder", sent)
		s.logger.Info("reminder sweep complete", "sent", sent)
	}
}

// remind stamps RemindedAt before emitting so a lost version race means
// another sweeper instance owns this appointment and no duplicate
// reminder goes out.
func (s *Sweeper) remind(ctx context.Context, appt *Appointment, now time.Time) bool {
	stamped := *appt
	stamped.RemindedAt = &now
	stamped.UpdatedAt = now
	if err := s.repo.Update(ctx, &stamped); err != nil {
		if !errors.Is(err, ErrConcurrencyConflict) && !errors.Is(err, ErrAppointmentNotFound) {
			s.logger.Error("stamp reminder", "appointment_id", appt.ID, "error", err)
		}
		return false
	}

	s.service.emit(ctx, stamped.ProviderID, events.TypeAppointmentReminder, events.AppointmentReminderV1{
		EventID:       uuid.NewString(),
		AppointmentID: stamped.ID,
		ProviderID:    stamped.ProviderID,
		PatientID:     stamped.PatientID,
		ScheduledAt:   stamped.ScheduledAt,
		Kind:          string(stamped.Kind),
		RemindedAt:    now,
	})
	return true
}
