package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/schedule"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var bookingTracer = otel.Tracer("scheduler.internal.appointments.booking")

// Slot is one bookable opening returned by GetAvailableSlots.
type Slot struct {
	Start           time.Time `json:"start"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Service is the booking orchestrator. It composes the schedule oracle,
// the conflict-checked repository, the lifecycle transitions and the
// event sink into the public operations.
type Service struct {
	templates schedule.Source
	repo      Repository
	events    events.Sink
	policy    CancellationPolicy
	retryMax  int
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCancellationPolicy overrides the default 24-hour notice policy.
func WithCancellationPolicy(p CancellationPolicy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithRetryMax sets how many times an optimistic-concurrency loser is
// retried before the conflict surfaces to the caller.
func WithRetryMax(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.retryMax = n
		}
	}
}

// WithMetrics attaches booking metrics. A nil receiver is a no-op
// recorder, so metrics stay optional.
func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the booking orchestrator.
func NewService(templates schedule.Source, repo Repository, sink events.Sink, logger *logging.Logger, opts ...ServiceOption) *Service {
	if templates == nil {
		panic("appointments: schedule source required")
	}
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		templates: templates,
		repo:      repo,
		events:    sink,
		policy:    DefaultCancellationPolicy(),
		retryMax:  3,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book validates the request against the provider's declared schedule
// and creates a pending appointment under the double-booking defense.
// Precondition order is fixed: request shape, future instant, schedule
// existence, kind offered, schedule open, then slot free.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("consultation_kind", string(req.Kind)),
	)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	now := s.now().UTC()
	if !req.ScheduledAt.After(now) {
		s.metrics.ObserveBooking("invalid")
		return nil, ErrPastScheduledAt
	}

	tpl, err := s.templates.Get(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			s.metrics.ObserveBooking("no_schedule")
			return nil, ErrNoSchedule
		}
		return nil, fmt.Errorf("appointments: load schedule: %w", err)
	}
	if !tpl.OffersKind(string(req.Kind)) {
		s.metrics.ObserveBooking("invalid")
		return nil, ErrKindNotOffered
	}

	durationMinutes := req.DurationMinutes
	if durationMinutes == 0 {
		durationMinutes = tpl.SlotDurationMinutes
	}

	open, err := tpl.IsAvailableAt(req.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("appointments: check availability: %w", err)
	}
	if !open {
		s.metrics.ObserveBooking("schedule_closed")
		return nil, ErrScheduleUnavailable
	}

	appt := &Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: durationMinutes,
		Kind:            req.Kind,
		Status:          StatusPending,
		FeeCents:        req.FeeCents,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The repository serializes check-and-insert per provider; a
	// concurrency conflict means another writer slipped in between
	// attempts, so retry a bounded number of times before treating the
	// slot as taken.
	var createErr error
	for attempt := 0; attempt <= s.retryMax; attempt++ {
		createErr = s.repo.CreateIfFree(ctx, appt)
		if !errors.Is(createErr, ErrConcurrencyConflict) {
			break
		}
	}
	if createErr != nil {
		if errors.Is(createErr, ErrSlotConflict) || errors.Is(createErr, ErrConcurrencyConflict) {
			s.metrics.ObserveBooking("conflict")
			return nil, ErrSlotConflict
		}
		s.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("appointments: create: %w", createErr)
	}

	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"scheduled_at", appt.ScheduledAt,
		"kind", appt.Kind)

	s.emit(ctx, appt.ProviderID, events.TypeAppointmentBooked, events.AppointmentBookedV1{
		EventID:         uuid.NewString(),
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		PatientID:       appt.PatientID,
		ScheduledAt:     appt.ScheduledAt,
		DurationMinutes: appt.DurationMinutes,
		Kind:            string(appt.Kind),
		BookedAt:        now,
	})
	return appt, nil
}

// GetAvailableSlots generates the provider's slots for a calendar date
// ("YYYY-MM-DD" in the provider's zone) and filters out those already
// occupied by active appointments, so a returned slot is bookable at
// query time.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID, date string) ([]Slot, error) {
	started := s.now()
	defer func() {
		s.metrics.ObserveSlotQueryLatency(time.Since(started).Seconds())
	}()

	tpl, err := s.templates.Get(ctx, providerID)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return nil, ErrNoSchedule
		}
		return nil, fmt.Errorf("appointments: load schedule: %w", err)
	}

	day, err := tpl.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	starts := tpl.SlotsForDate(day)
	if len(starts) == 0 {
		return []Slot{}, nil
	}

	existing, err := s.repo.ListActiveByProviderBetween(ctx, providerID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("appointments: list active: %w", err)
	}

	duration := time.Duration(tpl.SlotDurationMinutes) * time.Minute
	slots := make([]Slot, 0, len(starts))
	for _, m := range starts {
		instant, err := tpl.SlotInstant(day, m)
		if err != nil {
			return nil, err
		}
		if HasConflict(existing, instant, duration, "") {
			continue
		}
		slots = append(slots, Slot{
			Start:           instant,
			Time:            m.HHMM(),
			DurationMinutes: tpl.SlotDurationMinutes,
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// GetAppointment loads a single appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetProviderStats returns aggregate booking counts for a provider.
func (s *Service) GetProviderStats(ctx context.Context, providerID string) (*ProviderStats, error) {
	return s.repo.GetProviderStats(ctx, providerID)
}

// Confirm transitions a pending appointment to confirmed and emits the
// confirmation event carrying the fee.
func (s *Service) Confirm(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.apply(ctx, id, "confirm", func(a Appointment) (Appointment, error) {
		return Confirm(a, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ProviderID, events.TypeAppointmentConfirmed, events.AppointmentConfirmedV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		ScheduledAt:   appt.ScheduledAt,
		FeeCents:      appt.FeeCents,
		ConfirmedAt:   *appt.ConfirmedAt,
	})
	return appt, nil
}

// StartConsultation transitions a confirmed appointment to in-progress.
func (s *Service) StartConsultation(ctx context.Context, id string) (*Appointment, error) {
	return s.apply(ctx, id, "start", func(a Appointment) (Appointment, error) {
		return StartConsultation(a, s.now())
	})
}

// Complete finishes a consultation and emits the completion event.
func (s *Service) Complete(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.apply(ctx, id, "complete", func(a Appointment) (Appointment, error) {
		return Complete(a, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ProviderID, events.TypeAppointmentCompleted, events.AppointmentCompletedV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		CompletedAt:   *appt.CompletedAt,
		CallSeconds:   appt.CallSeconds,
	})
	return appt, nil
}

// Cancel terminates an appointment on behalf of an actor, applying the
// minimum-notice policy, and emits the cancellation event.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor, reason string) (*Appointment, error) {
	appt, err := s.apply(ctx, id, "cancel", func(a Appointment) (Appointment, error) {
		return Cancel(a, actor, reason, s.policy, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ProviderID, events.TypeAppointmentCancelled, events.AppointmentCancelledV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		ScheduledAt:   appt.ScheduledAt,
		CancelledBy:   string(appt.CancelledBy),
		Reason:        appt.CancellationReason,
		CancelledAt:   *appt.CancelledAt,
	})
	return appt, nil
}

// MarkNoShow records a missed confirmed appointment and emits the
// no-show event.
func (s *Service) MarkNoShow(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.apply(ctx, id, "no_show", func(a Appointment) (Appointment, error) {
		return MarkNoShow(a, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, appt.ProviderID, events.TypeAppointmentNoShow, events.AppointmentNoShowV1{
		EventID:       uuid.NewString(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		ScheduledAt:   appt.ScheduledAt,
		MarkedAt:      s.now().UTC(),
	})
	return appt, nil
}

// Reschedule moves an appointment to a new instant. The new time must
// pass the same schedule checks as booking, and the write goes through
// the conflict-checked repository path.
func (s *Service) Reschedule(ctx context.Context, id string, newStart time.Time) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "appointments.reschedule")
	defer span.End()

	for attempt := 0; ; attempt++ {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		tpl, err := s.templates.Get(ctx, appt.ProviderID)
		if err != nil {
			if errors.Is(err, schedule.ErrTemplateNotFound) {
				return nil, ErrNoSchedule
			}
			return nil, fmt.Errorf("appointments: load schedule: %w", err)
		}
		open, err := tpl.IsAvailableAt(newStart)
		if err != nil {
			return nil, fmt.Errorf("appointments: check availability: %w", err)
		}
		if !open {
			return nil, ErrScheduleUnavailable
		}

		next, err := Reschedule(*appt, newStart, s.now())
		if err != nil {
			s.metrics.ObserveTransition("reschedule", "rejected")
			return nil, err
		}
		err = s.repo.RescheduleIfFree(ctx, &next)
		if err == nil {
			s.metrics.ObserveTransition("reschedule", "applied")
			s.logger.Info("appointment rescheduled",
				"appointment_id", next.ID,
				"scheduled_at", next.ScheduledAt)
			return &next, nil
		}
		if errors.Is(err, ErrConcurrencyConflict) && attempt < s.retryMax {
			continue
		}
		s.metrics.ObserveTransition("reschedule", "rejected")
		return nil, err
	}
}

// apply runs a pure transition under the optimistic-versioning loop:
// load the current snapshot, transition it, write with a version check,
// and reload-and-retry on a lost race.
func (s *Service) apply(ctx context.Context, id, name string, fn func(Appointment) (Appointment, error)) (*Appointment, error) {
	for attempt := 0; ; attempt++ {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := fn(*appt)
		if err != nil {
			s.metrics.ObserveTransition(name, "rejected")
			return nil, err
		}
		next.UpdatedAt = s.now().UTC()
		err = s.repo.Update(ctx, &next)
		if err == nil {
			s.metrics.ObserveTransition(name, "applied")
			s.logger.Info("appointment transition",
				"appointment_id", next.ID,
				"transition", name,
				"status", next.Status)
			return &next, nil
		}
		if errors.Is(err, ErrConcurrencyConflict) && attempt < s.retryMax {
			continue
		}
		s.metrics.ObserveTransition(name, "rejected")
		return nil, err
	}
}

// emit publishes an event without blocking the caller's outcome: the
// state change is already committed, and delivery failures are logged
// and retried by the outbox deliverer, not surfaced to the client.
func (s *Service) emit(ctx context.Context, providerID, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, providerID, eventType, payload); err != nil {
		s.logger.Error("emit event", "event_type", eventType, "error", err)
	}
}
