package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown adapter type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSourceDisabled indicates an operation requires an enabled source.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrSourceEnabled indicates removal was attempted on an enabled
	// source. A source must be disabled before removal.
	ErrSourceEnabled = errors.New("source still enabled")

	// ErrPollInFlight indicates a poll is already running for the source.
	ErrPollInFlight = errors.New("poll in flight")

	// ErrQuotaExhausted is the expected control-flow outcome of a quota
	// denial. It signals "try later" and is never treated as a fault.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrRateLimited indicates the provider returned an explicit
	// rate-limit response. Retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrAdapterParse indicates the adapter could not parse a raw batch.
	// The whole poll cycle fails; the next scheduled poll retries
	// naturally.
	ErrAdapterParse = errors.New("adapter parse failed")

	// ErrJobExhausted indicates a job ran out of retry attempts and was
	// marked permanently failed.
	ErrJobExhausted = errors.New("job retries exhausted")

	// ErrStopped indicates the component has been stopped.
	ErrStopped = errors.New("stopped")
)

// RateLimitError carries the provider's advisory reset time alongside the
// rate-limit signal so the retry executor can classify it.
type RateLimitError struct {
	SourceID string
	ResetAt  time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source %s rate limited until %s", e.SourceID, e.ResetAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// TransientError marks a fetch failure as retryable (network error, 5xx).
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

// Unwrap exposes the underlying fault.
func (e *TransientError) Unwrap() error {
	return e.Err
}
