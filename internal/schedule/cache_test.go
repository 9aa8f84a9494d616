package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func newCacheFixture(t *testing.T) (*Cache, pgxmock.PgxPoolIface, *miniredis.Miniredis) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewCache(NewStoreWithDB(mock), client), mock, mr
}

func expectTemplateRow(mock pgxmock.PgxPoolIface, providerID string) {
	mock.ExpectQuery(`SELECT provider_id, timezone, slot_duration_mins`).
		WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows([]string{
			"provider_id", "timezone", "slot_duration_mins", "buffer_mins", "max_slots_per_day",
			"weekly", "blocked", "overrides", "consultation_kinds", "updated_at",
		}).AddRow(providerID, "America/New_York", 30, 0, 0,
			[]byte(`{"monday":{"time_ranges":[{"start":540,"end":720}]}}`),
			[]byte(`[]`), []byte(`[]`), []string{}, time.Now()))
}

func TestCache_MissThenHit(t *testing.T) {
	cache, mock, mr := newCacheFixture(t)
	expectTemplateRow(mock, "prov-1")

	ctx := context.Background()

	first, err := cache.Get(ctx, "prov-1")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if !mr.Exists("schedule:template:prov-1") {
		t.Fatal("template not backfilled into redis")
	}

	// Second read must come from redis: no further DB expectation is set,
	// so a store call would fail the mock.
	second, err := cache.Get(ctx, "prov-1")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if second.ProviderID != first.ProviderID || second.SlotDurationMinutes != first.SlotDurationMinutes {
		t.Errorf("cached template differs: %+v vs %+v", second, first)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCache_CorruptEntryFallsThrough(t *testing.T) {
	cache, mock, mr := newCacheFixture(t)
	if err := mr.Set("schedule:template:prov-1", "{not json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}
	expectTemplateRow(mock, "prov-1")

	tpl, err := cache.Get(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.ProviderID != "prov-1" {
		t.Errorf("ProviderID = %q, want prov-1", tpl.ProviderID)
	}
}

func TestCache_RedisDownFallsBackToStore(t *testing.T) {
	cache, mock, mr := newCacheFixture(t)
	mr.Close()
	expectTemplateRow(mock, "prov-1")

	tpl, err := cache.Get(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("Get with redis down: %v", err)
	}
	if tpl.ProviderID != "prov-1" {
		t.Errorf("ProviderID = %q, want prov-1", tpl.ProviderID)
	}
}

func TestCache_UpsertRefreshesEntry(t *testing.T) {
	cache, mock, mr := newCacheFixture(t)

	mock.ExpectExec(`INSERT INTO schedule_templates`).
		WithArgs("prov-1", "America/New_York", 30, 0, 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := cache.Upsert(context.Background(), validTemplate()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	raw, err := mr.Get("schedule:template:prov-1")
	if err != nil {
		t.Fatalf("cache entry missing: %v", err)
	}
	var cached Template
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("cache entry not JSON: %v", err)
	}
	if cached.ProviderID != "prov-1" {
		t.Errorf("cached ProviderID = %q, want prov-1", cached.ProviderID)
	}
}

func TestCache_NilRedisPassesThrough(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()
	expectTemplateRow(mock, "prov-1")

	cache := NewCache(NewStoreWithDB(mock), nil)
	if _, err := cache.Get(context.Background(), "prov-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}
