package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
	"github.com/tenderline-labs/tenderline/internal/logger"
)

// catalogueDebounce batches the burst of events an editor emits when it
// saves a file (write, chmod, rename in quick succession).
const catalogueDebounce = 250 * time.Millisecond

// catalogueFile is the on-disk schema of sources.yaml.
type catalogueFile struct {
	Sources []catalogueSource `yaml:"sources"`
}

type catalogueSource struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Type         string            `yaml:"type"`
	BaseURL      string            `yaml:"base_url"`
	Auth         string            `yaml:"auth"`
	PollInterval string            `yaml:"poll_interval"`
	Quota        catalogueQuota    `yaml:"quota"`
	Retry        catalogueRetry    `yaml:"retry"`
	FastLane     bool              `yaml:"fast_lane"`
	Enabled      bool              `yaml:"enabled"`
	Options      map[string]string `yaml:"options"`
}

type catalogueQuota struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
	Burst           int `yaml:"burst"`
}

type catalogueRetry struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

// LoadCatalogue parses a sources.yaml file into source configurations.
// Entries without an id or adapter type are rejected rather than
// skipped so a typo in the catalogue is noticed, not silently dropped.
func LoadCatalogue(path string) ([]domain.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed catalogueFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}

	configs := make([]domain.SourceConfig, 0, len(parsed.Sources))
	for i, src := range parsed.Sources {
		cfg, err := src.toConfig()
		if err != nil {
			return nil, fmt.Errorf("catalogue %s: source %d: %w", path, i, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (s catalogueSource) toConfig() (domain.SourceConfig, error) {
	if s.ID == "" {
		return domain.SourceConfig{}, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if s.Type == "" {
		return domain.SourceConfig{}, fmt.Errorf("%w: type is required", domain.ErrInvalidInput)
	}

	interval, err := optionalDuration(s.PollInterval)
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("poll_interval: %w", err)
	}
	baseDelay, err := optionalDuration(s.Retry.BaseDelay)
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("retry.base_delay: %w", err)
	}
	maxDelay, err := optionalDuration(s.Retry.MaxDelay)
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("retry.max_delay: %w", err)
	}

	return domain.SourceConfig{
		ID:           s.ID,
		Name:         s.Name,
		Type:         s.Type,
		BaseURL:      s.BaseURL,
		AuthMode:     domain.AuthMode(s.Auth),
		PollInterval: interval,
		Quota: domain.QuotaPolicy{
			RequestsPerHour: s.Quota.RequestsPerHour,
			Burst:           s.Quota.Burst,
		},
		Retry: domain.RetryPolicy{
			MaxRetries: s.Retry.MaxRetries,
			BaseDelay:  baseDelay,
			MaxDelay:   maxDelay,
		},
		FastLane: s.FastLane,
		Enabled:  s.Enabled,
		Options:  s.Options,
	}, nil
}

func optionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// Catalogue syncs a sources.yaml file into the running engine through
// the admin surface, and can watch the file for live edits.
type Catalogue struct {
	path  string
	admin driving.SourceAdmin

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewCatalogue creates a catalogue bound to a sources.yaml path.
func NewCatalogue(path string, admin driving.SourceAdmin) *Catalogue {
	return &Catalogue{
		path:  path,
		admin: admin,
		done:  make(chan struct{}),
	}
}

// Sync loads the catalogue file and applies it: unknown sources are
// added, known sources whose definition changed are updated. Sources
// present in the engine but absent from the file are left alone, so a
// truncated file never tears down running sources.
func (c *Catalogue) Sync(ctx context.Context) error {
	configs, err := LoadCatalogue(c.path)
	if err != nil {
		return err
	}

	var errs []error
	for _, cfg := range configs {
		existing, err := c.admin.Get(ctx, cfg.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if err := c.admin.Add(ctx, cfg); err != nil {
				errs = append(errs, fmt.Errorf("add %s: %w", cfg.ID, err))
			}
		case err != nil:
			errs = append(errs, fmt.Errorf("get %s: %w", cfg.ID, err))
		case catalogueDiffers(*existing, cfg):
			if err := c.admin.Update(ctx, cfg); err != nil {
				errs = append(errs, fmt.Errorf("update %s: %w", cfg.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// catalogueDiffers reports whether the file defines the source
// differently from the engine. Timestamps are engine-owned and ignored.
func catalogueDiffers(current, next domain.SourceConfig) bool {
	if current.Name != next.Name ||
		current.Type != next.Type ||
		current.BaseURL != next.BaseURL ||
		current.AuthMode != next.AuthMode ||
		current.PollInterval != next.PollInterval ||
		current.Quota != next.Quota ||
		current.Retry != next.Retry ||
		current.FastLane != next.FastLane ||
		current.Enabled != next.Enabled {
		return true
	}
	if len(current.Options) != len(next.Options) {
		return true
	}
	for k, v := range next.Options {
		if current.Options[k] != v {
			return true
		}
	}
	return false
}

// Watch starts watching the catalogue file and re-syncs after edits.
// The parent directory is watched because editors replace files by
// rename, which drops a watch on the file itself.
func (c *Catalogue) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.watching {
		c.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		c.mu.Unlock()
		return err
	}
	c.watcher = watcher
	c.watching = true
	c.mu.Unlock()

	go c.watchLoop(ctx)
	return nil
}

// Stop stops the catalogue watcher.
func (c *Catalogue) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.watcher != nil {
			c.watcher.Close()
		}
		c.watching = false
		c.mu.Unlock()
	})
}

func (c *Catalogue) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(c.path)
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(catalogueDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(catalogueDebounce)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("catalogue watch: %v", err)
		case <-fire:
			debounce = nil
			if err := c.Sync(ctx); err != nil {
				// The previous state keeps serving until the file parses.
				logger.Warn("catalogue reload: %v", err)
			} else {
				logger.Info("catalogue reloaded from %s", c.path)
			}
		}
	}
}
