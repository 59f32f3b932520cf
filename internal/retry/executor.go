// Package retry wraps fallible fetches in bounded exponential backoff
// with jitter. Only transient faults are retried: network errors, 5xx
// responses, and explicit rate-limit signals. Everything else fails
// through on the first attempt.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// Executor retries an operation with delay min(base * 2^attempt, cap)
// plus random jitter, up to MaxRetries re-attempts.
type Executor struct {
	// MaxRetries is the number of re-attempts after the first try. An
	// always-failing operation is attempted MaxRetries+1 times total.
	MaxRetries int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Jitter is the maximum random addition to each delay. Zero picks
	// a quarter of BaseDelay.
	Jitter time.Duration

	// Classify overrides retryability detection. Nil uses Retryable.
	Classify func(error) bool

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor from a source's retry policy.
func New(policy domain.RetryPolicy) *Executor {
	return &Executor{
		MaxRetries: policy.MaxRetries,
		BaseDelay:  policy.BaseDelay,
		MaxDelay:   policy.MaxDelay,
	}
}

// Retryable reports whether an error is a transient fetch failure: a
// network error, an explicit rate-limit signal, or anything wrapped in
// domain.TransientError (the 5xx marker used by connectors).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var transient *domain.TransientError
	if errors.As(err, &transient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoffCeiling bounds growth when a policy carries no MaxDelay, so a
// long failure streak can never double the delay into a negative sleep.
const backoffCeiling = time.Hour

// Delay computes the backoff before re-attempt number attempt (0-based),
// excluding jitter. Exposed so tests can assert monotonic growth.
func (e *Executor) Delay(attempt int) time.Duration {
	ceiling := e.MaxDelay
	if ceiling <= 0 {
		ceiling = backoffCeiling
	}
	d := e.BaseDelay
	if d <= 0 {
		if e.MaxDelay > 0 {
			return e.MaxDelay
		}
		return 0
	}
	for i := 0; i < attempt; i++ {
		d <<= 1
		if d <= 0 || d >= ceiling {
			return ceiling
		}
	}
	return d
}

func (e *Executor) jitter() time.Duration {
	j := e.Jitter
	if j == 0 {
		j = e.BaseDelay / 4
	}
	if j <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(j)))
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op, retrying transient failures until success, exhaustion, or
// context cancellation. The returned error is the last attempt's.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	classify := e.Classify
	if classify == nil {
		classify = Retryable
	}

	var err error
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.Delay(attempt-1) + e.jitter()
			logger.Debug("retrying in %s (attempt %d/%d)", delay, attempt, e.MaxRetries)
			if werr := e.wait(ctx, delay); werr != nil {
				return werr
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
	}
	return err
}
