package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Source yields schedule templates for providers. Implemented by Store,
// Cache and test fakes.
type Source interface {
	Get(ctx context.Context, providerID string) (*Template, error)
}

// Writer persists schedule templates. Implemented by Store and Cache.
type Writer interface {
	Upsert(ctx context.Context, t *Template) error
}

const cacheTTL = 5 * time.Minute

// Cache is a read-through Redis cache in front of the Postgres store.
// Templates change rarely but are read on every slot query and booking
// attempt, so the hot path avoids the database.
type Cache struct {
	store *Store
	redis *redis.Client
}

// NewCache creates a template cache. A nil redis client disables caching
// and passes every call through to the store.
func NewCache(store *Store, redisClient *redis.Client) *Cache {
	if store == nil {
		panic("schedule: store required")
	}
	return &Cache{store: store, redis: redisClient}
}

func (c *Cache) key(providerID string) string {
	return fmt.Sprintf("schedule:template:%s", providerID)
}

// Get retrieves a template, consulting Redis before Postgres.
func (c *Cache) Get(ctx context.Context, providerID string) (*Template, error) {
	if c.redis == nil {
		return c.store.Get(ctx, providerID)
	}

	data, err := c.redis.Get(ctx, c.key(providerID)).Bytes()
	if err == nil {
		var t Template
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
		// Corrupt cache entry: fall through to the store.
	} else if err != redis.Nil {
		// Redis being down must not take bookings down with it.
		return c.store.Get(ctx, providerID)
	}

	t, err := c.store.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	c.backfill(ctx, t)
	return t, nil
}

// Upsert saves through to Postgres and refreshes the cache entry.
func (c *Cache) Upsert(ctx context.Context, t *Template) error {
	if err := c.store.Upsert(ctx, t); err != nil {
		return err
	}
	if c.redis != nil {
		c.backfill(ctx, t)
	}
	return nil
}

func (c *Cache) backfill(ctx context.Context, t *Template) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	// Best effort: a failed set just means a cache miss next time.
	_ = c.redis.Set(ctx, c.key(t.ProviderID), data, cacheTTL).Err()
}
