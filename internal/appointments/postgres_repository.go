package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// apptDB narrows pgxpool.Pool to what the repository needs so tests can
// inject pgxmock.
type apptDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores appointments in the relational database.
//
// The booking critical section is serialized per provider with
// pg_advisory_xact_lock keyed by the provider ID, making conflict check
// and insert one atomic unit: two racing bookings for the same provider
// queue behind the lock and the loser sees the winner's row.
type PostgresRepository struct {
	db apptDB
}

// NewPostgresRepository initializes a repository backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db apptDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const activeStatuses = `'pending', 'confirmed', 'in_progress'`

const conflictExistsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE provider_id = $1
		  AND status IN (` + activeStatuses + `)
		  AND id <> $2
		  AND scheduled_at < $4
		  AND scheduled_at + make_interval(mins => duration_mins) > $3
	)
`

func (r *PostgresRepository) CreateIfFree(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := acquireProviderLock(ctx, tx, appt.ProviderID); err != nil {
		return err
	}

	conflict, err := intervalConflicts(ctx, tx, appt.ProviderID, "", appt.ScheduledAt, appt.End())
	if err != nil {
		return err
	}
	if conflict {
		return ErrSlotConflict
	}

	insert := `
		INSERT INTO appointments
			(id, patient_id, provider_id, scheduled_at, duration_mins, kind, status, fee_cents, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, now(), now())
	`
	if _, err := tx.Exec(ctx, insert,
		appt.ID,
		appt.PatientID,
		appt.ProviderID,
		appt.ScheduledAt.UTC(),
		appt.DurationMinutes,
		string(appt.Kind),
		string(appt.Status),
		appt.FeeCents,
	); err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}

	counters := `
		INSERT INTO booking_counters (subject_type, subject_id, total_bookings)
		VALUES ('provider', $1, 1), ('patient', $2, 1)
		ON CONFLICT (subject_type, subject_id)
		DO UPDATE SET total_bookings = booking_counters.total_bookings + 1, updated_at = now()
	`
	if _, err := tx.Exec(ctx, counters, appt.ProviderID, appt.PatientID); err != nil {
		return fmt.Errorf("appointments: bump counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit create: %w", err)
	}
	appt.Version = 1
	return nil
}

func (r *PostgresRepository) RescheduleIfFree(ctx context.Context, appt *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := acquireProviderLock(ctx, tx, appt.ProviderID); err != nil {
		return err
	}

	conflict, err := intervalConflicts(ctx, tx, appt.ProviderID, appt.ID, appt.ScheduledAt, appt.End())
	if err != nil {
		return err
	}
	if conflict {
		return ErrSlotConflict
	}

	update := `
		UPDATE appointments
		SET scheduled_at = $2, reminded_at = NULL, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3
	`
	ct, err := tx.Exec(ctx, update, appt.ID, appt.ScheduledAt.UTC(), appt.Version)
	if err != nil {
		return fmt.Errorf("appointments: reschedule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return versionMiss(ctx, tx, appt.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit reschedule: %w", err)
	}
	appt.Version++
	return nil
}

const appointmentColumns = `
	id, patient_id, provider_id, scheduled_at, duration_mins, kind, status, fee_cents,
	confirmed_at, call_started_at, completed_at, cancelled_at, reminded_at,
	cancelled_by, cancellation_reason, call_seconds, version, created_at, updated_at
`

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments
		SET status = $2,
		    confirmed_at = $3,
		    call_started_at = $4,
		    completed_at = $5,
		    cancelled_at = $6,
		    reminded_at = $7,
		    cancelled_by = $8,
		    cancellation_reason = $9,
		    call_seconds = $10,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $11
	`
	ct, err := r.db.Exec(ctx, query,
		appt.ID,
		string(appt.Status),
		toPGTime(appt.ConfirmedAt),
		toPGTime(appt.CallStartedAt),
		toPGTime(appt.CompletedAt),
		toPGTime(appt.CancelledAt),
		toPGTime(appt.RemindedAt),
		string(appt.CancelledBy),
		appt.CancellationReason,
		appt.CallSeconds,
		appt.Version,
	)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return versionMiss(ctx, r.db, appt.ID)
	}
	appt.Version++
	return nil
}

func (r *PostgresRepository) ListActiveByProviderBetween(ctx context.Context, providerID string, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1
		  AND status IN (` + activeStatuses + `)
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_mins) > $2
		ORDER BY scheduled_at
	`
	return r.queryAppointments(ctx, query, providerID, from.UTC(), to.UTC())
}

func (r *PostgresRepository) ListNoShowCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'confirmed'
		  AND scheduled_at + make_interval(mins => duration_mins) <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`
	return r.queryAppointments(ctx, query, endedBefore.UTC(), limit)
}

func (r *PostgresRepository) ListReminderCandidates(ctx context.Context, from, until time.Time, limit int) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'confirmed'
		  AND reminded_at IS NULL
		  AND scheduled_at > $1
		  AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3
	`
	return r.queryAppointments(ctx, query, from.UTC(), until.UTC(), limit)
}

func (r *PostgresRepository) GetProviderStats(ctx context.Context, providerID string) (*ProviderStats, error) {
	stats := &ProviderStats{ProviderID: providerID}

	counterQuery := `
		SELECT COALESCE(
			(SELECT total_bookings FROM booking_counters WHERE subject_type = 'provider' AND subject_id = $1), 0)
	`
	if err := r.db.QueryRow(ctx, counterQuery, providerID).Scan(&stats.TotalBookings); err != nil {
		return nil, fmt.Errorf("appointments: provider counter: %w", err)
	}

	aggQuery := `
		SELECT COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'no_show')
		FROM appointments
		WHERE provider_id = $1
	`
	if err := r.db.QueryRow(ctx, aggQuery, providerID).Scan(&stats.Completed, &stats.Cancelled, &stats.NoShows); err != nil {
		return nil, fmt.Errorf("appointments: provider aggregates: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row pgScanner) (*Appointment, error) {
	var (
		a           Appointment
		kind        string
		status      string
		confirmed   pgtype.Timestamptz
		callStarted pgtype.Timestamptz
		completed   pgtype.Timestamptz
		cancelled   pgtype.Timestamptz
		reminded    pgtype.Timestamptz
		cancelledBy string
	)
	if err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&kind,
		&status,
		&a.FeeCents,
		&confirmed,
		&callStarted,
		&completed,
		&cancelled,
		&reminded,
		&cancelledBy,
		&a.CancellationReason,
		&a.CallSeconds,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Kind = Kind(kind)
	a.Status = Status(status)
	a.CancelledBy = Role(cancelledBy)
	a.ConfirmedAt = fromPGTime(confirmed)
	a.CallStartedAt = fromPGTime(callStarted)
	a.CompletedAt = fromPGTime(completed)
	a.CancelledAt = fromPGTime(cancelled)
	a.RemindedAt = fromPGTime(reminded)
	return &a, nil
}

type pgExecQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func acquireProviderLock(ctx context.Context, tx pgx.Tx, providerID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID); err != nil {
		return fmt.Errorf("appointments: provider lock: %w", err)
	}
	return nil
}

func intervalConflicts(ctx context.Context, tx pgx.Tx, providerID, excludeID string, start, end time.Time) (bool, error) {
	var conflict bool
	if err := tx.QueryRow(ctx, conflictExistsQuery, providerID, excludeID, start.UTC(), end.UTC()).Scan(&conflict); err != nil {
		return false, fmt.Errorf("appointments: conflict check: %w", err)
	}
	return conflict, nil
}

// versionMiss distinguishes a vanished row from a lost optimistic race.
func versionMiss(ctx context.Context, q pgExecQuerier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("appointments: version check: %w", err)
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrConcurrencyConflict
}

func toPGTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func fromPGTime(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
