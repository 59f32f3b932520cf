// Package ratelimit enforces per-source throughput ceilings for the poll
// orchestrator. The core limiter is a sliding log, not a fixed-bucket
// counter: every admitted request is recorded with its timestamp and
// entries older than the window are purged on each check, so a burst at a
// window boundary cannot double the effective rate.
package ratelimit

import (
	"sync"
	"time"
)

// window holds the sliding log for one source. Check-and-increment is
// atomic under the window's mutex even when two pollers race on the same
// source during a reschedule.
type window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
}

// purge drops entries older than now - span. Caller holds mu.
func (w *window) purge(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Limiter tracks a sliding request window per source and admits or denies
// requests against the configured quota. A denial is not an error; it is
// the expected "try later" outcome.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	// now is swapped in tests.
	now func() time.Time
}

// NewLimiter creates an empty limiter. Sources are added with Register.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Register installs or replaces the quota for a source. Replacing keeps
// the recorded log so a quota edit cannot be used to dodge the window.
func (l *Limiter) Register(sourceID string, limit int, span time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[sourceID]; ok {
		w.mu.Lock()
		w.limit = limit
		w.span = span
		w.mu.Unlock()
		return
	}
	l.windows[sourceID] = &window{limit: limit, span: span}
}

// Unregister removes a source's window entirely.
func (l *Limiter) Unregister(sourceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, sourceID)
}

// lookup returns the window for a source, or nil if unregistered.
func (l *Limiter) lookup(sourceID string) *window {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.windows[sourceID]
}

// Admit atomically checks whether a new request fits the source's window
// and, if so, records it in the same step. Unregistered sources are
// always denied.
func (l *Limiter) Admit(sourceID string) bool {
	return l.admitUpTo(sourceID, -1)
}

// admitUpTo is Admit with an override ceiling. A negative override uses
// the configured limit; the adaptive layer passes its scaled limit here.
func (l *Limiter) admitUpTo(sourceID string, override int) bool {
	w := l.lookup(sourceID)
	if w == nil {
		return false
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	limit := w.limit
	if override >= 0 && override < limit {
		limit = override
	}
	if len(w.stamps) >= limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Remaining reports the advisory number of admissions left in the window.
func (l *Limiter) Remaining(sourceID string) int {
	w := l.lookup(sourceID)
	if w == nil {
		return 0
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	if r := w.limit - len(w.stamps); r > 0 {
		return r
	}
	return 0
}

// ResetTime reports when the oldest admission ages out of the window.
// With an empty log it returns the current time: a request would be
// admitted immediately.
func (l *Limiter) ResetTime(sourceID string) time.Time {
	w := l.lookup(sourceID)
	if w == nil {
		return l.now()
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	if len(w.stamps) == 0 {
		return now
	}
	return w.stamps[0].Add(w.span)
}

// Used reports how many admissions are currently inside the window.
func (l *Limiter) Used(sourceID string) int {
	w := l.lookup(sourceID)
	if w == nil {
		return 0
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	return len(w.stamps)
}

// Reset clears the recorded log for a source administratively.
func (l *Limiter) Reset(sourceID string) {
	w := l.lookup(sourceID)
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = w.stamps[:0]
}
