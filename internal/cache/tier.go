package cache

import (
	"sync"
	"time"
)

// Tier names one of the manager's three stores.
type Tier string

// Cache tiers, hottest first.
const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// lookupOrder is the tier sequence for untargeted reads.
var lookupOrder = []Tier{TierHot, TierWarm, TierCold}

// entry is one cached value inside a tier store.
type entry struct {
	value     any
	expiresAt time.Time
}

// store is a single tier: its own TTL, its own capacity, its own lock.
// The three tiers are logically independent; only the manager touches
// them.
type store struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newStore(ttl time.Duration, maxEntries int, now func() time.Time) *store {
	return &store{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// get returns the live value for key, expiring lazily.
func (s *store) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// set stores a value with the tier TTL (or an override) and evicts if
// the tier is over capacity.
func (s *store) set(key string, value any, ttlOverride time.Duration) {
	ttl := s.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		s.evictLocked()
	}
}

// evictLocked drops expired entries first, then the entries closest to
// expiry until the store fits. Caller holds mu.
func (s *store) evictLocked() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}

	for len(s.entries) > s.maxEntries {
		var victim string
		var soonest time.Time
		for k, e := range s.entries {
			if victim == "" || e.expiresAt.Before(soonest) {
				victim = k
				soonest = e.expiresAt
			}
		}
		delete(s.entries, victim)
	}
}

// del removes a key; returns whether it was present.
func (s *store) del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// len reports the number of entries, expired included.
func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
