package domain

import (
	"fmt"
	"time"
)

// AuthMode identifies how a source authenticates outbound requests.
type AuthMode string

// Supported authentication modes.
const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apikey"
	AuthOAuth  AuthMode = "oauth"
)

// QuotaPolicy is the throughput ceiling a provider publishes for its API.
// RequestsPerHour bounds the sliding window; Burst is the short-term
// allowance smoothed by the proactive bucket.
type QuotaPolicy struct {
	// RequestsPerHour is the hard quota counted over the trailing window.
	RequestsPerHour int

	// Burst is the number of requests that may be issued back to back.
	Burst int
}

// Window returns the interval the hourly quota is counted over.
func (q QuotaPolicy) Window() time.Duration {
	return time.Hour
}

// RetryPolicy bounds the retry executor for one source's fetches.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int

	// BaseDelay is the delay before the first retry; subsequent delays
	// double up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// SourceConfig describes one external procurement-data provider.
// Configs are owned by the source registry; all runtime mutation goes
// through it so readers never observe a half-updated config.
type SourceConfig struct {
	// ID is the unique identifier for the source.
	ID string

	// Name is the human-readable name for this source.
	Name string

	// Type identifies the adapter type (e.g., "samgov", "httpjson").
	Type string

	// BaseURL is the provider's API endpoint.
	BaseURL string

	// AuthMode selects how requests are authenticated.
	AuthMode AuthMode

	// Quota is the provider's published throughput ceiling.
	Quota QuotaPolicy

	// PollInterval is the cadence at which the source is polled.
	PollInterval time.Duration

	// Retry bounds transient-failure retries for this source.
	Retry RetryPolicy

	// FastLane marks a high-volume/low-latency source whose jobs get a
	// fixed priority bonus in the pipeline.
	FastLane bool

	// Enabled gates polling. A source must be disabled before removal.
	Enabled bool

	// Options contains provider-specific configuration the core never
	// inspects; it is passed through to the adapter.
	Options map[string]string

	// CreatedAt is when the source was first registered.
	CreatedAt time.Time

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time
}

// Validate checks the fields the engine itself depends on. Adapter-specific
// options are validated by the adapter, not here.
func (c *SourceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if c.Type == "" {
		return fmt.Errorf("%w: source %s: adapter type is required", ErrInvalidInput, c.ID)
	}
	if c.Quota.RequestsPerHour <= 0 {
		return fmt.Errorf("%w: source %s: requests per hour must be positive", ErrInvalidInput, c.ID)
	}
	if c.Quota.Burst < 0 {
		return fmt.Errorf("%w: source %s: burst must not be negative", ErrInvalidInput, c.ID)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: source %s: poll interval must be positive", ErrInvalidInput, c.ID)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: source %s: max retries must not be negative", ErrInvalidInput, c.ID)
	}
	return nil
}

// SourceMetrics is the derived per-source health record, recomputed every
// poll cycle by the registry. It is never authoritative and can always be
// reconstructed from logs.
type SourceMetrics struct {
	// SourceID links to the source being measured.
	SourceID string

	// Polls is the number of completed poll cycles (skips excluded).
	Polls int

	// Failures is the number of poll cycles that ended in error.
	Failures int

	// ConsecutiveFailures counts failures since the last success.
	// A quota skip does not touch this counter.
	ConsecutiveFailures int

	// RecordsProcessed counts normalised records accepted by the pipeline.
	RecordsProcessed int

	// RecordsRejected counts records that failed per-record validation.
	RecordsRejected int

	// QuotaUtilisation is admitted requests over the configured quota for
	// the current window, in [0, 1].
	QuotaUtilisation float64

	// LastPoll is when the most recent poll cycle started.
	LastPoll time.Time

	// LastSuccess is when the most recent poll cycle succeeded.
	LastSuccess time.Time

	// NextPoll is when the next poll is scheduled.
	NextPoll time.Time

	// LastError describes the most recent poll failure, if any.
	LastError string
}

// Uptime returns the fraction of completed polls that succeeded.
func (m *SourceMetrics) Uptime() float64 {
	if m.Polls == 0 {
		return 1
	}
	return float64(m.Polls-m.Failures) / float64(m.Polls)
}

// SourceStatus is the administrative view of one source: its config, its
// derived metrics, and the limiter's advisory state.
type SourceStatus struct {
	Config  SourceConfig
	Metrics SourceMetrics

	// RemainingQuota is the advisory number of admissions left in the window.
	RemainingQuota int

	// ResetAt is the advisory time the oldest admission ages out.
	ResetAt time.Time

	// Polling reports whether a poll is in flight right now.
	Polling bool
}
