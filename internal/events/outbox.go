// Package events provides the transactional outbox through which
// lifecycle events reach the payment and notification collaborators.
// Emission is fire-and-forget from the scheduler's point of view: a
// transition never blocks on, or fails because of, event delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Sink accepts domain events for asynchronous delivery.
type Sink interface {
	Emit(ctx context.Context, providerID string, eventType string, payload any) error
}

// OutboxEntry is an appointment event awaiting delivery.
type OutboxEntry struct {
	ID         uuid.UUID
	ProviderID string
	Type       string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithDB(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Emit implements Sink.
func (s *OutboxStore) Emit(ctx context.Context, providerID string, eventType string, payload any) error {
	_, err := s.Insert(ctx, providerID, eventType, payload)
	return err
}

func (s *OutboxStore) Insert(ctx context.Context, providerID string, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbox (id, provider_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.Exec(ctx, query, id, providerID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, provider_id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.ProviderID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered stamps the entry. The delivered_at IS NULL guard means
// only one deliverer instance wins, so a false return is not an error.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// PurgeDelivered removes delivered entries older than the cutoff and
// returns how many rows were dropped.
func (s *OutboxStore) PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE delivered_at IS NOT NULL AND delivered_at < $1
	`
	ct, err := s.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("events: purge delivered: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Deliverer polls the outbox, pushes pending entries through the
// handler and periodically purges delivered rows past retention.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
	retention time.Duration
	lastPurge time.Time
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
		retention: 7 * 24 * time.Hour,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithRetention sets how long delivered entries are kept for audit.
// Zero disables purging.
func (d *Deliverer) WithRetention(retention time.Duration) *Deliverer {
	d.retention = retention
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
			d.maybePurge(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("event delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type, "provider_id", entry.ProviderID)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark event delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("event delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
}

func (d *Deliverer) maybePurge(ctx context.Context) {
	if d.retention <= 0 || time.Since(d.lastPurge) < time.Hour {
		return
	}
	d.lastPurge = time.Now()
	purged, err := d.store.PurgeDelivered(ctx, time.Now().Add(-d.retention))
	if err != nil {
		d.logger.Error("outbox purge failed", "error", err)
		return
	}
	if purged > 0 {
		d.logger.Info("purged delivered events", "count", purged)
	}
}
