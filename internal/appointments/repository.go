package appointments

import (
	"context"
	"sync"
	"time"
)

// ProviderStats are aggregate booking counts for one provider.
type ProviderStats struct {
	ProviderID    string `json:"provider_id"`
	TotalBookings int64  `json:"total_bookings"`
	Completed     int64  `json:"completed"`
	Cancelled     int64  `json:"cancelled"`
	NoShows       int64  `json:"no_shows"`
}

// Repository is the persistence boundary for appointments.
//
// CreateIfFree and RescheduleIfFree carry the double-booking defense:
// each implementation must make "check conflict + write" one atomic unit
// per provider (a per-provider mutex in memory, a provider-keyed
// advisory transaction lock in Postgres). Update applies optimistic
// versioning and returns ErrConcurrencyConflict on a lost race.
type Repository interface {
	// CreateIfFree inserts the appointment unless its interval overlaps an
	// active appointment for the same provider, and increments the
	// provider and patient booking counters in the same atomic unit.
	CreateIfFree(ctx context.Context, appt *Appointment) error

	// RescheduleIfFree persists a changed ScheduledAt under the same
	// conflict discipline, excluding the appointment itself, with a
	// version check.
	RescheduleIfFree(ctx context.Context, appt *Appointment) error

	GetByID(ctx context.Context, id string) (*Appointment, error)

	// Update persists a lifecycle transition. The write only applies when
	// the stored version matches appt.Version; on success appt.Version is
	// incremented.
	Update(ctx context.Context, appt *Appointment) error

	// ListActiveByProviderBetween returns active appointments for a
	// provider whose intervals intersect [from, to).
	ListActiveByProviderBetween(ctx context.Context, providerID string, from, to time.Time) ([]Appointment, error)

	// ListNoShowCandidates returns confirmed appointments whose interval
	// ended at or before the cutoff.
	ListNoShowCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]Appointment, error)

	// ListReminderCandidates returns confirmed, not-yet-reminded
	// appointments scheduled within (from, until].
	ListReminderCandidates(ctx context.Context, from, until time.Time, limit int) ([]Appointment, error)

	GetProviderStats(ctx context.Context, providerID string) (*ProviderStats, error)
}

// MemoryRepository keeps appointments in process memory. Used by tests
// and local development without a database.
type MemoryRepository struct {
	mu       sync.Mutex
	appts    map[string]*Appointment
	locks    map[string]*sync.Mutex
	counters map[string]int64 // "provider:<id>" / "patient:<id>"
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appts:    make(map[string]*Appointment),
		locks:    make(map[string]*sync.Mutex),
		counters: make(map[string]int64),
	}
}

// providerLock returns the serialization mutex for one provider,
// creating it on first use.
func (r *MemoryRepository) providerLock(providerID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[providerID] = l
	}
	return l
}

func (r *MemoryRepository) CreateIfFree(ctx context.Context, appt *Appointment) error {
	lock := r.providerLock(appt.ProviderID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appts {
		if existing.ProviderID != appt.ProviderID || !existing.Status.Active() {
			continue
		}
		if Overlaps(appt.ScheduledAt, appt.Duration(), existing.ScheduledAt, existing.Duration()) {
			return ErrSlotConflict
		}
	}

	stored := *appt
	r.appts[appt.ID] = &stored
	r.counters["provider:"+appt.ProviderID]++
	r.counters["patient:"+appt.PatientID]++
	return nil
}

func (r *MemoryRepository) RescheduleIfFree(ctx context.Context, appt *Appointment) error {
	lock := r.providerLock(appt.ProviderID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appts[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if current.Version != appt.Version {
		return ErrConcurrencyConflict
	}

	for _, existing := range r.appts {
		if existing.ID == appt.ID || existing.ProviderID != appt.ProviderID || !existing.Status.Active() {
			continue
		}
		if Overlaps(appt.ScheduledAt, appt.Duration(), existing.ScheduledAt, existing.Duration()) {
			return ErrSlotConflict
		}
	}

	appt.Version++
	appt.UpdatedAt = time.Now().UTC()
	stored := *appt
	r.appts[appt.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appts[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if current.Version != appt.Version {
		return ErrConcurrencyConflict
	}

	appt.Version++
	appt.UpdatedAt = time.Now().UTC()
	stored := *appt
	r.appts[appt.ID] = &stored
	return nil
}

func (r *MemoryRepository) ListActiveByProviderBetween(ctx context.Context, providerID string, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.ProviderID != providerID || !a.Status.Active() {
			continue
		}
		if a.ScheduledAt.Before(to) && a.End().After(from) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListNoShowCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.Status != StatusConfirmed {
			continue
		}
		if !a.End().After(endedBefore) {
			out = append(out, *a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListReminderCandidates(ctx context.Context, from, until time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.Status != StatusConfirmed || a.RemindedAt != nil {
			continue
		}
		if a.ScheduledAt.After(from) && !a.ScheduledAt.After(until) {
			out = append(out, *a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetProviderStats(ctx context.Context, providerID string) (*ProviderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &ProviderStats{
		ProviderID:    providerID,
		TotalBookings: r.counters["provider:"+providerID],
	}
	for _, a := range r.appts {
		if a.ProviderID != providerID {
			continue
		}
		switch a.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusCancelled:
			stats.Cancelled++
		case StatusNoShow:
			stats.NoShows++
		}
	}
	return stats, nil
}
