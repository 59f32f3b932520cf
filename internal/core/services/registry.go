package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
	"github.com/tenderline-labs/tenderline/internal/logger"
	"github.com/tenderline-labs/tenderline/internal/ratelimit"
)

// SourceRegistry is the single owner of source configurations, derived
// metrics, and the per-source rate limiter. All runtime mutation goes
// through it; readers never observe a half-updated config or a limiter
// registered under a stale quota.
type SourceRegistry struct {
	store   driven.SourceConfigStore
	limiter *ratelimit.AdaptiveLimiter

	mu      sync.RWMutex
	entries map[string]*sourceEntry
}

type sourceEntry struct {
	cfg     domain.SourceConfig
	metrics domain.SourceMetrics
	polling bool
}

// NewSourceRegistry creates a registry backed by a config store and an
// adaptive limiter.
func NewSourceRegistry(store driven.SourceConfigStore, limiter *ratelimit.AdaptiveLimiter) *SourceRegistry {
	return &SourceRegistry{
		store:   store,
		limiter: limiter,
		entries: make(map[string]*sourceEntry),
	}
}

// Load hydrates the registry from the config store and registers a
// limiter window for every source.
func (r *SourceRegistry) Load(ctx context.Context) error {
	configs, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load source configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range configs {
		r.entries[cfg.ID] = &sourceEntry{
			cfg:     cfg,
			metrics: domain.SourceMetrics{SourceID: cfg.ID},
		}
		r.limiter.Register(cfg.ID, cfg.Quota.RequestsPerHour, cfg.Quota.Burst, cfg.Quota.Window())
	}
	logger.Info("registry: loaded %d sources", len(configs))
	return nil
}

// Add registers a new source, persists it, and opens its limiter window.
// Returns domain.ErrAlreadyExists for a duplicate id.
func (r *SourceRegistry) Add(ctx context.Context, cfg domain.SourceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cfg.ID]; ok {
		return fmt.Errorf("%w: source %s", domain.ErrAlreadyExists, cfg.ID)
	}

	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := r.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("save source %s: %w", cfg.ID, err)
	}

	r.entries[cfg.ID] = &sourceEntry{
		cfg:     cfg,
		metrics: domain.SourceMetrics{SourceID: cfg.ID},
	}
	r.limiter.Register(cfg.ID, cfg.Quota.RequestsPerHour, cfg.Quota.Burst, cfg.Quota.Window())
	logger.Info("registry: added source %s (%s)", cfg.ID, cfg.Type)
	return nil
}

// Update replaces an existing source's configuration. A quota change
// re-registers the limiter window in the same critical section, so no
// admit can race against the old quota. Returns domain.ErrNotFound for
// an unknown id.
func (r *SourceRegistry) Update(ctx context.Context, cfg domain.SourceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[cfg.ID]
	if !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, cfg.ID)
	}

	cfg.CreatedAt = entry.cfg.CreatedAt
	cfg.UpdatedAt = time.Now()
	if err := r.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("save source %s: %w", cfg.ID, err)
	}

	if cfg.Quota != entry.cfg.Quota {
		r.limiter.Register(cfg.ID, cfg.Quota.RequestsPerHour, cfg.Quota.Burst, cfg.Quota.Window())
	}
	entry.cfg = cfg
	return nil
}

// SetEnabled flips a source's enabled flag. Returns domain.ErrNotFound
// for an unknown id.
func (r *SourceRegistry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	if entry.cfg.Enabled == enabled {
		return nil
	}
	cfg := entry.cfg
	cfg.Enabled = enabled
	cfg.UpdatedAt = time.Now()
	if err := r.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("save source %s: %w", id, err)
	}
	entry.cfg = cfg
	return nil
}

// Remove deletes a source. An enabled source must be disabled first;
// Remove returns domain.ErrSourceEnabled while it still polls.
func (r *SourceRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	if entry.cfg.Enabled {
		return fmt.Errorf("%w: source %s", domain.ErrSourceEnabled, id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	delete(r.entries, id)
	r.limiter.Unregister(id)
	logger.Info("registry: removed source %s", id)
	return nil
}

// Get returns a copy of one source's configuration.
func (r *SourceRegistry) Get(id string) (*domain.SourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	cfg := entry.cfg
	return &cfg, nil
}

// List returns copies of every registered source configuration.
func (r *SourceRegistry) List() []domain.SourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configs := make([]domain.SourceConfig, 0, len(r.entries))
	for _, entry := range r.entries {
		configs = append(configs, entry.cfg)
	}
	return configs
}

// Status assembles the administrative view of one source.
func (r *SourceRegistry) Status(id string) (*domain.SourceStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	return &domain.SourceStatus{
		Config:         entry.cfg,
		Metrics:        entry.metrics,
		RemainingQuota: r.limiter.Remaining(id),
		ResetAt:        r.limiter.ResetTime(id),
		Polling:        entry.polling,
	}, nil
}

// ResetQuota clears a source's rate-limit window administratively.
func (r *SourceRegistry) ResetQuota(id string) error {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	r.limiter.Reset(id)
	return nil
}

// Limiter exposes the adaptive limiter the registry owns. The
// orchestrator receives it explicitly instead of reaching for shared
// global state.
func (r *SourceRegistry) Limiter() *ratelimit.AdaptiveLimiter {
	return r.limiter
}

// BeginPoll marks a source as polling and stamps LastPoll.
func (r *SourceRegistry) BeginPoll(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		entry.polling = true
		entry.metrics.LastPoll = time.Now()
	}
}

// FinishPollSuccess records a successful poll cycle: the failure streak
// resets and quota utilisation is recomputed from the limiter's window.
// Record counters arrive separately through RecordOutcome once the
// normalize stage has validated the batch.
func (r *SourceRegistry) FinishPollSuccess(id string, next time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.polling = false
	entry.metrics.Polls++
	entry.metrics.ConsecutiveFailures = 0
	entry.metrics.LastSuccess = time.Now()
	entry.metrics.NextPoll = next
	entry.metrics.LastError = ""
	entry.metrics.QuotaUtilisation = r.utilisationLocked(entry)
}

// RecordOutcome accumulates per-record validation results for a source.
// Processed counts records the normalize stage accepted; rejected counts
// the ones that failed validation.
func (r *SourceRegistry) RecordOutcome(id string, processed, rejected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.metrics.RecordsProcessed += processed
	entry.metrics.RecordsRejected += rejected
}

// FinishPollFailure records a failed poll cycle.
func (r *SourceRegistry) FinishPollFailure(id string, err error, next time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.polling = false
	entry.metrics.Polls++
	entry.metrics.Failures++
	entry.metrics.ConsecutiveFailures++
	entry.metrics.NextPoll = next
	if err != nil {
		entry.metrics.LastError = err.Error()
	}
	entry.metrics.QuotaUtilisation = r.utilisationLocked(entry)
}

// FinishPollSkip records a quota-denied cycle. A skip is not a failure:
// it touches neither the poll count nor the failure streak.
func (r *SourceRegistry) FinishPollSkip(id string, next time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.polling = false
	entry.metrics.NextPoll = next
	entry.metrics.QuotaUtilisation = r.utilisationLocked(entry)
}

func (r *SourceRegistry) utilisationLocked(entry *sourceEntry) float64 {
	limit := entry.cfg.Quota.RequestsPerHour
	if limit <= 0 {
		return 0
	}
	return float64(r.limiter.Used(entry.cfg.ID)) / float64(limit)
}
