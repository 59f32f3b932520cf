package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Adaptive tuning defaults. Empirically chosen; override via Tuning.
const (
	// DefaultFactorFloor is the lowest the adaptive factor may fall.
	DefaultFactorFloor = 0.5

	// DefaultFactorCeil is the highest the adaptive factor may rise.
	DefaultFactorCeil = 1.0

	// DefaultBackoffStep multiplies the factor on every denial.
	DefaultBackoffStep = 0.9

	// DefaultRecoverStep multiplies the factor on every admission.
	DefaultRecoverStep = 1.01

	// MaxWaitSlice caps a single WaitForQuota sleep so a far-out reset
	// time cannot park a poller for the whole window.
	MaxWaitSlice = 60 * time.Second
)

// Tuning bounds the adaptive factor. Zero values take the defaults.
type Tuning struct {
	FactorFloor float64
	FactorCeil  float64
	BackoffStep float64
	RecoverStep float64
}

func (t Tuning) withDefaults() Tuning {
	if t.FactorFloor == 0 {
		t.FactorFloor = DefaultFactorFloor
	}
	if t.FactorCeil == 0 {
		t.FactorCeil = DefaultFactorCeil
	}
	if t.BackoffStep == 0 {
		t.BackoffStep = DefaultBackoffStep
	}
	if t.RecoverStep == 0 {
		t.RecoverStep = DefaultRecoverStep
	}
	return t
}

// adaptiveState is the per-source self-tuning state.
type adaptiveState struct {
	mu     sync.Mutex
	factor float64
	limit  int

	// bucket paces requests proactively so the burst allowance is spent
	// smoothly instead of hammering the window edge.
	bucket *rate.Limiter
}

// AdaptiveLimiter wraps Limiter with a per-source multiplicative factor
// applied to the configured limit before the sliding-window check. Every
// denial backs the factor off; every admission lets it recover; the
// factor stays inside [floor, ceil].
type AdaptiveLimiter struct {
	limiter *Limiter
	tuning  Tuning

	mu     sync.RWMutex
	states map[string]*adaptiveState
}

// NewAdaptiveLimiter creates an adaptive limiter with the given tuning.
func NewAdaptiveLimiter(tuning Tuning) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: NewLimiter(),
		tuning:  tuning.withDefaults(),
		states:  make(map[string]*adaptiveState),
	}
}

// Register installs or replaces a source's quota. The adaptive factor is
// reset to the ceiling: a config edit is a fresh start.
func (a *AdaptiveLimiter) Register(sourceID string, limit, burst int, span time.Duration) {
	a.limiter.Register(sourceID, limit, span)

	perSecond := float64(limit) / span.Seconds()
	if burst < 1 {
		burst = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[sourceID] = &adaptiveState{
		factor: a.tuning.FactorCeil,
		limit:  limit,
		bucket: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Unregister removes a source from both layers.
func (a *AdaptiveLimiter) Unregister(sourceID string) {
	a.limiter.Unregister(sourceID)

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, sourceID)
}

func (a *AdaptiveLimiter) state(sourceID string) *adaptiveState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.states[sourceID]
}

// Admit checks the source's scaled limit and records the request on
// success. Denials shrink the factor, admissions grow it back.
func (a *AdaptiveLimiter) Admit(sourceID string) bool {
	st := a.state(sourceID)
	if st == nil {
		return false
	}

	st.mu.Lock()
	scaled := int(math.Floor(float64(st.limit) * st.factor))
	if scaled < 1 {
		scaled = 1
	}
	st.mu.Unlock()

	admitted := a.limiter.admitUpTo(sourceID, scaled)

	st.mu.Lock()
	if admitted {
		st.factor *= a.tuning.RecoverStep
		if st.factor > a.tuning.FactorCeil {
			st.factor = a.tuning.FactorCeil
		}
	} else {
		st.factor *= a.tuning.BackoffStep
		if st.factor < a.tuning.FactorFloor {
			st.factor = a.tuning.FactorFloor
		}
	}
	st.mu.Unlock()

	return admitted
}

// Factor reports the source's current adaptive factor.
func (a *AdaptiveLimiter) Factor(sourceID string) float64 {
	st := a.state(sourceID)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.factor
}

// Remaining reports the advisory admissions left against the raw limit.
func (a *AdaptiveLimiter) Remaining(sourceID string) int {
	return a.limiter.Remaining(sourceID)
}

// ResetTime reports when the oldest admission ages out of the window.
func (a *AdaptiveLimiter) ResetTime(sourceID string) time.Time {
	return a.limiter.ResetTime(sourceID)
}

// Used reports the admissions currently inside the window.
func (a *AdaptiveLimiter) Used(sourceID string) int {
	return a.limiter.Used(sourceID)
}

// Reset clears the source's sliding log administratively.
func (a *AdaptiveLimiter) Reset(sourceID string) {
	a.limiter.Reset(sourceID)
}

// WaitForQuota blocks until an admission succeeds, the context is
// cancelled, or the source is unregistered. It never busy-spins: after a
// denial it sleeps until the advisory reset time, capped at MaxWaitSlice
// per iteration. This is the primitive the orchestrator uses to stay
// under a provider's published quota even while adaptively throttled.
func (a *AdaptiveLimiter) WaitForQuota(ctx context.Context, sourceID string) error {
	st := a.state(sourceID)
	if st == nil {
		return ErrUnknownSource
	}

	// Proactive pacing before touching the window.
	if err := st.bucket.Wait(ctx); err != nil {
		return err
	}

	for {
		if a.Admit(sourceID) {
			return nil
		}
		if a.state(sourceID) == nil {
			return ErrUnknownSource
		}

		sleep := time.Until(a.ResetTime(sourceID))
		if sleep > MaxWaitSlice {
			sleep = MaxWaitSlice
		}
		if sleep <= 0 {
			sleep = 10 * time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
