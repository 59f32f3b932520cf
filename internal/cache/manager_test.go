package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(cfg Config) (*Manager, *time.Time) {
	m := NewManager(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_SetGetRoundTrip(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.Set("record:samgov/123", "value", Options{})
	got, ok := m.Get("record:samgov/123")
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestManager_InferTier(t *testing.T) {
	m, _ := newTestManager(Config{})

	assert.Equal(t, TierHot, m.InferTier("live:opportunities"))
	assert.Equal(t, TierHot, m.InferTier("query:agency=dod"))
	assert.Equal(t, TierWarm, m.InferTier("agg:monthly"))
	assert.Equal(t, TierWarm, m.InferTier("scores:samgov/123"))
	assert.Equal(t, TierCold, m.InferTier("record:samgov/123"))
	assert.Equal(t, TierCold, m.InferTier("no-namespace"))
}

func TestManager_TierPlacement(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.Set("live:x", 1, Options{})
	_, hot := m.GetFrom(TierHot, "live:x")
	assert.True(t, hot)

	m.Set("record:y", 2, Options{})
	_, cold := m.GetFrom(TierCold, "record:y")
	assert.True(t, cold)

	// Explicit tier pin wins over the namespace.
	m.Set("record:z", 3, Options{Tier: TierWarm})
	_, warm := m.GetFrom(TierWarm, "record:z")
	assert.True(t, warm)
}

func TestManager_TTLExpiry(t *testing.T) {
	m, now := newTestManager(Config{Hot: TierConfig{TTL: time.Minute}})

	m.Set("live:x", 1, Options{})
	_, ok := m.Get("live:x")
	require.True(t, ok)

	*now = now.Add(2 * time.Minute)
	_, ok = m.Get("live:x")
	assert.False(t, ok)
}

func TestManager_LookupOrderStopsAtFirstHit(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.tiers[TierHot].set("k", "hot", 0)
	m.tiers[TierWarm].set("k", "warm", 0)

	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hot", got)
}

func TestManager_Promotion(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.Set("record:popular", "v", Options{})

	// Reads over the observation minimum with a perfect hit rate.
	for i := 0; i < DefaultPromoteMinObservations+2; i++ {
		_, ok := m.Get("record:popular")
		require.True(t, ok)
	}

	_, hot := m.GetFrom(TierHot, "record:popular")
	assert.True(t, hot, "hot tier should hold the promoted copy")

	// Promotion is additive: the cold copy survives.
	_, cold := m.GetFrom(TierCold, "record:popular")
	assert.True(t, cold)
}

func TestManager_NoPromotionBelowThreshold(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.Set("record:quiet", "v", Options{})
	for i := 0; i < 3; i++ {
		m.Get("record:quiet")
	}

	_, hot := m.GetFrom(TierHot, "record:quiet")
	assert.False(t, hot)
}

func TestManager_NoPromotionWithLowHitRate(t *testing.T) {
	m, _ := newTestManager(Config{})

	// Lots of misses first, then a late set: hit rate stays low.
	for i := 0; i < 20; i++ {
		m.Get("record:flaky")
	}
	m.Set("record:flaky", "v", Options{})
	m.Get("record:flaky")

	_, hot := m.GetFrom(TierHot, "record:flaky")
	assert.False(t, hot)
}

func TestManager_GetOrSet(t *testing.T) {
	m, _ := newTestManager(Config{})
	ctx := context.Background()

	calls := 0
	fetcher := func(context.Context) (any, error) {
		calls++
		return "fetched", nil
	}

	got, err := m.GetOrSet(ctx, "record:x", fetcher, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fetched", got)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	got, err = m.GetOrSet(ctx, "record:x", fetcher, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fetched", got)
	assert.Equal(t, 1, calls)
}

func TestManager_GetOrSet_FetcherError(t *testing.T) {
	m, _ := newTestManager(Config{})

	wantErr := errors.New("storage down")
	_, err := m.GetOrSet(context.Background(), "record:x", func(context.Context) (any, error) {
		return nil, wantErr
	}, Options{})
	assert.ErrorIs(t, err, wantErr)

	_, ok := m.Get("record:x")
	assert.False(t, ok, "a failed fetch must not populate the cache")
}

func TestManager_Del(t *testing.T) {
	m, _ := newTestManager(Config{})
	m.Set("record:x", 1, Options{})
	m.Del("record:x")
	_, ok := m.Get("record:x")
	assert.False(t, ok)
}

func TestManager_MGetMSet(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.MSet(map[string]any{"record:a": 1, "record:b": 2}, Options{})

	got := m.MGet([]string{"record:a", "record:b", "record:missing"})
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got["record:a"])
	assert.Equal(t, 2, got["record:b"])
}

func TestManager_InvalidateByTags(t *testing.T) {
	m, _ := newTestManager(Config{})

	m.Set("live:a", 1, Options{Tags: []string{"source:samgov"}})
	m.Set("agg:b", 2, Options{Tags: []string{"source:samgov", "type:opportunity"}})
	m.Set("record:c", 3, Options{Tags: []string{"type:contract"}})

	n := m.InvalidateByTags([]string{"source:samgov"})
	assert.Equal(t, 2, n)

	_, ok := m.Get("live:a")
	assert.False(t, ok)
	_, ok = m.Get("agg:b")
	assert.False(t, ok)
	_, ok = m.Get("record:c")
	assert.True(t, ok, "untagged-by-samgov key survives")

	// The tag index is cleared: re-invalidation finds nothing.
	assert.Equal(t, 0, m.InvalidateByTags([]string{"source:samgov"}))
}

func TestManager_TagHorizonExpiry(t *testing.T) {
	m, now := newTestManager(Config{TagHorizon: time.Hour})

	m.Set("record:old", 1, Options{Tags: []string{"stale"}})

	*now = now.Add(2 * time.Hour)
	// Registering any tag sweeps expired tag sets.
	m.Set("record:new", 2, Options{Tags: []string{"fresh"}})

	assert.Equal(t, 0, m.InvalidateByTags([]string{"stale"}),
		"expired tag set no longer indexes its keys")
}

func TestStore_EvictionPrefersClosestExpiry(t *testing.T) {
	m, _ := newTestManager(Config{Hot: TierConfig{TTL: time.Hour, MaxEntries: 2}})

	m.Set("live:a", 1, Options{TTL: time.Minute})
	m.Set("live:b", 2, Options{TTL: time.Hour})
	m.Set("live:c", 3, Options{TTL: time.Hour})

	_, ok := m.GetFrom(TierHot, "live:a")
	assert.False(t, ok, "entry closest to expiry is evicted first")
	_, ok = m.GetFrom(TierHot, "live:b")
	assert.True(t, ok)
	_, ok = m.GetFrom(TierHot, "live:c")
	assert.True(t, ok)
}
