package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// templateDB narrows pgxpool.Pool to what the store needs so tests can
// inject pgxmock.
type templateDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists schedule templates in Postgres. The weekly pattern,
// blocked dates and overrides are stored as JSONB documents.
type Store struct {
	db templateDB
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &Store{db: pool}
}

// NewStoreWithDB allows injecting a mock database for testing.
func NewStoreWithDB(db templateDB) *Store {
	return &Store{db: db}
}

// Get loads the template for a provider.
func (s *Store) Get(ctx context.Context, providerID string) (*Template, error) {
	query := `
		SELECT provider_id, timezone, slot_duration_mins, buffer_mins, max_slots_per_day,
		       weekly, blocked, overrides, consultation_kinds, updated_at
		FROM schedule_templates
		WHERE provider_id = $1
	`
	row := s.db.QueryRow(ctx, query, providerID)

	var (
		t        Template
		weekly   []byte
		blocked  []byte
		override []byte
	)
	if err := row.Scan(
		&t.ProviderID,
		&t.Timezone,
		&t.SlotDurationMinutes,
		&t.BufferMinutes,
		&t.MaxSlotsPerDay,
		&weekly,
		&blocked,
		&override,
		&t.ConsultationKinds,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("schedule: select template: %w", err)
	}

	if err := json.Unmarshal(weekly, &t.Weekly); err != nil {
		return nil, fmt.Errorf("schedule: unmarshal weekly pattern: %w", err)
	}
	if len(blocked) > 0 {
		if err := json.Unmarshal(blocked, &t.Blocked); err != nil {
			return nil, fmt.Errorf("schedule: unmarshal blocked dates: %w", err)
		}
	}
	if len(override) > 0 {
		if err := json.Unmarshal(override, &t.Overrides); err != nil {
			return nil, fmt.Errorf("schedule: unmarshal overrides: %w", err)
		}
	}
	return &t, nil
}

// Upsert validates and saves a template, replacing any previous version.
func (s *Store) Upsert(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	weekly, err := json.Marshal(t.Weekly)
	if err != nil {
		return fmt.Errorf("schedule: marshal weekly pattern: %w", err)
	}
	blocked, err := json.Marshal(t.Blocked)
	if err != nil {
		return fmt.Errorf("schedule: marshal blocked dates: %w", err)
	}
	overrides, err := json.Marshal(t.Overrides)
	if err != nil {
		return fmt.Errorf("schedule: marshal overrides: %w", err)
	}

	query := `
		INSERT INTO schedule_templates
			(provider_id, timezone, slot_duration_mins, buffer_mins, max_slots_per_day, weekly, blocked, overrides, consultation_kinds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (provider_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			slot_duration_mins = EXCLUDED.slot_duration_mins,
			buffer_mins = EXCLUDED.buffer_mins,
			max_slots_per_day = EXCLUDED.max_slots_per_day,
			weekly = EXCLUDED.weekly,
			blocked = EXCLUDED.blocked,
			overrides = EXCLUDED.overrides,
			consultation_kinds = EXCLUDED.consultation_kinds,
			updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query,
		t.ProviderID,
		t.Timezone,
		t.SlotDurationMinutes,
		t.BufferMinutes,
		t.MaxSlotsPerDay,
		weekly,
		blocked,
		overrides,
		t.ConsultationKinds,
	); err != nil {
		return fmt.Errorf("schedule: upsert template: %w", err)
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}
