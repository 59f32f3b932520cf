// Package cache provides the three-tier read-through cache that sits in
// front of expensive storage reads. Keys land in a tier inferred from
// their namespace unless pinned explicitly; frequently-hit warm and cold
// keys are promoted (copied, never moved) into the hot tier; tags form a
// many-to-many index used only for bulk invalidation.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Promotion and tag-expiry defaults. Heuristic; override via Config.
const (
	// DefaultPromoteMinObservations is the minimum lookups a key needs
	// before it can be promoted.
	DefaultPromoteMinObservations = 10

	// DefaultPromoteHitRate is the hit rate a key must exceed to be
	// promoted into the hot tier.
	DefaultPromoteHitRate = 0.8

	// DefaultTagHorizon bounds tag-index growth: tag sets older than
	// this are dropped wholesale.
	DefaultTagHorizon = 24 * time.Hour
)

// Default per-tier TTLs and capacities. Hot is short-lived and tight,
// cold is long-lived and roomy.
const (
	DefaultHotTTL  = 5 * time.Minute
	DefaultWarmTTL = time.Hour
	DefaultColdTTL = 24 * time.Hour

	DefaultHotCap  = 1_000
	DefaultWarmCap = 10_000
	DefaultColdCap = 100_000
)

// TierConfig sets one tier's TTL and capacity.
type TierConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// Config tunes the manager. Zero values take the defaults above.
type Config struct {
	Hot  TierConfig
	Warm TierConfig
	Cold TierConfig

	PromoteMinObservations int
	PromoteHitRate         float64
	TagHorizon             time.Duration

	// Namespaces maps a key prefix (up to the first ':') to a tier.
	// Unmapped prefixes land cold. Nil takes DefaultNamespaces().
	Namespaces map[string]Tier
}

// DefaultNamespaces routes live-query keys hot and aggregate/analytic
// keys warm, everything else cold.
func DefaultNamespaces() map[string]Tier {
	return map[string]Tier{
		"live":   TierHot,
		"query":  TierHot,
		"agg":    TierWarm,
		"stats":  TierWarm,
		"scores": TierWarm,
	}
}

func (c Config) withDefaults() Config {
	if c.Hot.TTL == 0 {
		c.Hot.TTL = DefaultHotTTL
	}
	if c.Warm.TTL == 0 {
		c.Warm.TTL = DefaultWarmTTL
	}
	if c.Cold.TTL == 0 {
		c.Cold.TTL = DefaultColdTTL
	}
	if c.Hot.MaxEntries == 0 {
		c.Hot.MaxEntries = DefaultHotCap
	}
	if c.Warm.MaxEntries == 0 {
		c.Warm.MaxEntries = DefaultWarmCap
	}
	if c.Cold.MaxEntries == 0 {
		c.Cold.MaxEntries = DefaultColdCap
	}
	if c.PromoteMinObservations == 0 {
		c.PromoteMinObservations = DefaultPromoteMinObservations
	}
	if c.PromoteHitRate == 0 {
		c.PromoteHitRate = DefaultPromoteHitRate
	}
	if c.TagHorizon == 0 {
		c.TagHorizon = DefaultTagHorizon
	}
	if c.Namespaces == nil {
		c.Namespaces = DefaultNamespaces()
	}
	return c
}

// Options qualifies a single set call.
type Options struct {
	// Tier pins the entry to a tier instead of namespace inference.
	Tier Tier

	// TTL overrides the tier TTL for this entry.
	TTL time.Duration

	// Tags registers the key for bulk invalidation.
	Tags []string
}

// keyStats is the per-key hit/miss counter behind promotion.
type keyStats struct {
	observations int
	hits         int
}

// tagSet is one tag's member keys plus its creation time for expiry.
type tagSet struct {
	keys      map[string]struct{}
	createdAt time.Time
}

// Manager owns the three tier stores, the promotion counters, and the
// tag index. No other component writes a tier directly.
type Manager struct {
	cfg   Config
	tiers map[Tier]*store

	mu    sync.Mutex
	stats map[string]*keyStats
	tags  map[string]*tagSet

	now func() time.Time
}

// NewManager creates a cache manager with the given config.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:   cfg.withDefaults(),
		stats: make(map[string]*keyStats),
		tags:  make(map[string]*tagSet),
		now:   time.Now,
	}
	m.tiers = map[Tier]*store{
		TierHot:  newStore(m.cfg.Hot.TTL, m.cfg.Hot.MaxEntries, func() time.Time { return m.now() }),
		TierWarm: newStore(m.cfg.Warm.TTL, m.cfg.Warm.MaxEntries, func() time.Time { return m.now() }),
		TierCold: newStore(m.cfg.Cold.TTL, m.cfg.Cold.MaxEntries, func() time.Time { return m.now() }),
	}
	return m
}

// InferTier maps a key to a tier by its namespace prefix (the part
// before the first ':').
func (m *Manager) InferTier(key string) Tier {
	ns, _, found := strings.Cut(key, ":")
	if !found {
		return TierCold
	}
	if tier, ok := m.cfg.Namespaces[ns]; ok {
		return tier
	}
	return TierCold
}

// Get looks up a key hot→warm→cold and stops at the first hit. A warm
// or cold hit feeds the promotion counter and may copy the entry into
// the hot tier.
func (m *Manager) Get(key string) (any, bool) {
	for _, tier := range lookupOrder {
		if value, ok := m.tiers[tier].get(key); ok {
			if tier != TierHot {
				m.observe(key, true)
				if m.shouldPromote(key) {
					// Additive: the origin tier keeps its copy so a hot
					// eviction cannot stampede the origin.
					m.tiers[TierHot].set(key, value, 0)
				}
			}
			return value, true
		}
	}
	m.observe(key, false)
	return nil, false
}

// GetFrom looks up a key in one pinned tier only.
func (m *Manager) GetFrom(tier Tier, key string) (any, bool) {
	s, ok := m.tiers[tier]
	if !ok {
		return nil, false
	}
	return s.get(key)
}

// Set stores a value in the pinned or inferred tier and registers its
// tags.
func (m *Manager) Set(key string, value any, opts Options) {
	tier := opts.Tier
	if tier == "" {
		tier = m.InferTier(key)
	}
	s, ok := m.tiers[tier]
	if !ok {
		s = m.tiers[TierCold]
	}
	s.set(key, value, opts.TTL)

	if len(opts.Tags) > 0 {
		m.registerTags(key, opts.Tags)
	}
}

// GetOrSet returns the cached value for key, or invokes fetcher,
// caches its result, and returns it. A miss always populates the cache
// before returning. Concurrent callers for the same key may each invoke
// the fetcher; single-flight is deliberately not provided.
func (m *Manager) GetOrSet(ctx context.Context, key string, fetcher func(ctx context.Context) (any, error), opts Options) (any, error) {
	if value, ok := m.Get(key); ok {
		return value, nil
	}

	value, err := fetcher(ctx)
	if err != nil {
		return nil, err
	}
	m.Set(key, value, opts)
	return value, nil
}

// Del removes a key from every tier.
func (m *Manager) Del(key string) {
	for _, s := range m.tiers {
		s.del(key)
	}
	m.mu.Lock()
	delete(m.stats, key)
	m.mu.Unlock()
}

// MGet returns the values found for keys; absent keys are omitted.
func (m *Manager) MGet(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := m.Get(key); ok {
			out[key] = value
		}
	}
	return out
}

// MSet stores every pair with the same options.
func (m *Manager) MSet(pairs map[string]any, opts Options) {
	for key, value := range pairs {
		m.Set(key, value, opts)
	}
}

// InvalidateByTags deletes every key registered under any of the given
// tags from all three tiers and clears those tags from the index.
func (m *Manager) InvalidateByTags(tags []string) int {
	m.mu.Lock()
	victims := make(map[string]struct{})
	for _, tag := range tags {
		if set, ok := m.tags[tag]; ok {
			for key := range set.keys {
				victims[key] = struct{}{}
			}
			delete(m.tags, tag)
		}
	}
	m.mu.Unlock()

	for key := range victims {
		m.Del(key)
	}
	return len(victims)
}

// Len reports the entry count of one tier, for stats surfaces.
func (m *Manager) Len(tier Tier) int {
	s, ok := m.tiers[tier]
	if !ok {
		return 0
	}
	return s.len()
}

// observe feeds the per-key hit/miss counter.
func (m *Manager) observe(key string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stats[key]
	if !ok {
		st = &keyStats{}
		m.stats[key] = st
	}
	st.observations++
	if hit {
		st.hits++
	}
}

// shouldPromote applies the promotion thresholds to a key's counters.
func (m *Manager) shouldPromote(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stats[key]
	if !ok {
		return false
	}
	if st.observations <= m.cfg.PromoteMinObservations {
		return false
	}
	return float64(st.hits)/float64(st.observations) > m.cfg.PromoteHitRate
}

// registerTags indexes a key under its tags and expires stale tag sets.
func (m *Manager) registerTags(key string, tags []string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Tags expire on a fixed horizon to bound index growth.
	for tag, set := range m.tags {
		if now.Sub(set.createdAt) > m.cfg.TagHorizon {
			delete(m.tags, tag)
		}
	}

	for _, tag := range tags {
		set, ok := m.tags[tag]
		if !ok {
			set = &tagSet{keys: make(map[string]struct{}), createdAt: now}
			m.tags[tag] = set
		}
		set.keys[key] = struct{}{}
	}
}
