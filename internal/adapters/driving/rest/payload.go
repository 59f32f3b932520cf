package rest

import (
	"fmt"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// sourcePayload is the wire form of a source configuration. Durations
// travel as Go duration strings ("30m", "2s").
type sourcePayload struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Type         string            `json:"type"`
	BaseURL      string            `json:"base_url,omitempty"`
	AuthMode     string            `json:"auth_mode,omitempty"`
	PollInterval string            `json:"poll_interval,omitempty"`
	QuotaHourly  int               `json:"quota_hourly,omitempty"`
	QuotaBurst   int               `json:"quota_burst,omitempty"`
	RetryMax     int               `json:"retry_max,omitempty"`
	RetryBase    string            `json:"retry_base,omitempty"`
	RetryMaxWait string            `json:"retry_max_wait,omitempty"`
	FastLane     bool              `json:"fast_lane,omitempty"`
	Enabled      bool              `json:"enabled"`
	Options      map[string]string `json:"options,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`
}

func toPayload(cfg domain.SourceConfig) sourcePayload {
	p := sourcePayload{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Type:        cfg.Type,
		BaseURL:     cfg.BaseURL,
		AuthMode:    string(cfg.AuthMode),
		QuotaHourly: cfg.Quota.RequestsPerHour,
		QuotaBurst:  cfg.Quota.Burst,
		RetryMax:    cfg.Retry.MaxRetries,
		FastLane:    cfg.FastLane,
		Enabled:     cfg.Enabled,
		Options:     cfg.Options,
	}
	if cfg.PollInterval > 0 {
		p.PollInterval = cfg.PollInterval.String()
	}
	if cfg.Retry.BaseDelay > 0 {
		p.RetryBase = cfg.Retry.BaseDelay.String()
	}
	if cfg.Retry.MaxDelay > 0 {
		p.RetryMaxWait = cfg.Retry.MaxDelay.String()
	}
	if !cfg.CreatedAt.IsZero() {
		t := cfg.CreatedAt
		p.CreatedAt = &t
	}
	if !cfg.UpdatedAt.IsZero() {
		t := cfg.UpdatedAt
		p.UpdatedAt = &t
	}
	return p
}

func (p sourcePayload) toConfig() (domain.SourceConfig, error) {
	interval, err := parseDuration(p.PollInterval, "poll_interval")
	if err != nil {
		return domain.SourceConfig{}, err
	}
	retryBase, err := parseDuration(p.RetryBase, "retry_base")
	if err != nil {
		return domain.SourceConfig{}, err
	}
	retryMax, err := parseDuration(p.RetryMaxWait, "retry_max_wait")
	if err != nil {
		return domain.SourceConfig{}, err
	}

	return domain.SourceConfig{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		BaseURL:      p.BaseURL,
		AuthMode:     domain.AuthMode(p.AuthMode),
		PollInterval: interval,
		Quota: domain.QuotaPolicy{
			RequestsPerHour: p.QuotaHourly,
			Burst:           p.QuotaBurst,
		},
		Retry: domain.RetryPolicy{
			MaxRetries: p.RetryMax,
			BaseDelay:  retryBase,
			MaxDelay:   retryMax,
		},
		FastLane: p.FastLane,
		Enabled:  p.Enabled,
		Options:  p.Options,
	}, nil
}

func parseDuration(raw, field string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// statusPayload is the wire form of a source's live status.
type statusPayload struct {
	Source              sourcePayload `json:"source"`
	Polls               int           `json:"polls"`
	Failures            int           `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RecordsProcessed    int           `json:"records_processed"`
	RecordsRejected     int           `json:"records_rejected"`
	Uptime              float64       `json:"uptime"`
	QuotaUtilisation    float64       `json:"quota_utilisation"`
	RemainingQuota      int           `json:"remaining_quota"`
	ResetAt             *time.Time    `json:"reset_at,omitempty"`
	LastPoll            *time.Time    `json:"last_poll,omitempty"`
	LastSuccess         *time.Time    `json:"last_success,omitempty"`
	NextPoll            *time.Time    `json:"next_poll,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	Polling             bool          `json:"polling"`
}

func toStatusPayload(status *domain.SourceStatus) statusPayload {
	p := statusPayload{
		Source:              toPayload(status.Config),
		Polls:               status.Metrics.Polls,
		Failures:            status.Metrics.Failures,
		ConsecutiveFailures: status.Metrics.ConsecutiveFailures,
		RecordsProcessed:    status.Metrics.RecordsProcessed,
		RecordsRejected:     status.Metrics.RecordsRejected,
		Uptime:              status.Metrics.Uptime(),
		QuotaUtilisation:    status.Metrics.QuotaUtilisation,
		RemainingQuota:      status.RemainingQuota,
		LastError:           status.Metrics.LastError,
		Polling:             status.Polling,
	}
	p.ResetAt = optionalTime(status.ResetAt)
	p.LastPoll = optionalTime(status.Metrics.LastPoll)
	p.LastSuccess = optionalTime(status.Metrics.LastSuccess)
	p.NextPoll = optionalTime(status.Metrics.NextPoll)
	return p
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// stageStatsPayload is the wire form of one stage's counters.
type stageStatsPayload struct {
	Stage     string `json:"stage"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Retried   int    `json:"retried"`
	Dropped   int    `json:"dropped"`
}
