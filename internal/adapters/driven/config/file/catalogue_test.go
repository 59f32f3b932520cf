package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
)

const catalogueYAML = `
sources:
  - id: samgov
    name: SAM.gov
    type: samgov
    base_url: https://api.sam.gov/opportunities/v2/search
    auth: apikey
    poll_interval: 30m
    quota:
      requests_per_hour: 1000
      burst: 5
    retry:
      max_retries: 3
      base_delay: 2s
      max_delay: 1m
    fast_lane: true
    enabled: true
    options:
      api_key: test-key
`

// stubAdmin records the admin calls the catalogue makes.
type stubAdmin struct {
	driving.SourceAdmin

	mu      sync.Mutex
	known   map[string]domain.SourceConfig
	added   []string
	updated []string
}

func newStubAdmin(known ...domain.SourceConfig) *stubAdmin {
	a := &stubAdmin{known: make(map[string]domain.SourceConfig)}
	for _, cfg := range known {
		a.known[cfg.ID] = cfg
	}
	return a
}

func (a *stubAdmin) Get(_ context.Context, id string) (*domain.SourceConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg, ok := a.known[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cfg, nil
}

func (a *stubAdmin) Add(_ context.Context, cfg domain.SourceConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.known[cfg.ID] = cfg
	a.added = append(a.added, cfg.ID)
	return nil
}

func (a *stubAdmin) Update(_ context.Context, cfg domain.SourceConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.known[cfg.ID] = cfg
	a.updated = append(a.updated, cfg.ID)
	return nil
}

func (a *stubAdmin) calls() (added, updated []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.added...), append([]string(nil), a.updated...)
}

func writeCatalogue(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadCatalogue_FullEntry(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), catalogueYAML)

	configs, err := LoadCatalogue(path)

	require.NoError(t, err)
	require.Len(t, configs, 1)
	cfg := configs[0]
	assert.Equal(t, "samgov", cfg.ID)
	assert.Equal(t, "SAM.gov", cfg.Name)
	assert.Equal(t, domain.AuthAPIKey, cfg.AuthMode)
	assert.Equal(t, 30*time.Minute, cfg.PollInterval)
	assert.Equal(t, 1000, cfg.Quota.RequestsPerHour)
	assert.Equal(t, 5, cfg.Quota.Burst)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Retry.MaxDelay)
	assert.True(t, cfg.FastLane)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "test-key", cfg.Options["api_key"])
}

func TestLoadCatalogue_MissingID(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), "sources:\n  - type: samgov\n")

	_, err := LoadCatalogue(path)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadCatalogue_BadDuration(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), "sources:\n  - id: x\n    type: samgov\n    poll_interval: soon\n")

	_, err := LoadCatalogue(path)

	assert.Error(t, err)
}

func TestCatalogue_Sync_AddsUnknownSources(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), catalogueYAML)
	admin := newStubAdmin()

	err := NewCatalogue(path, admin).Sync(context.Background())

	require.NoError(t, err)
	added, updated := admin.calls()
	assert.Equal(t, []string{"samgov"}, added)
	assert.Empty(t, updated)
}

func TestCatalogue_Sync_UpdatesChangedSources(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), catalogueYAML)
	configs, err := LoadCatalogue(path)
	require.NoError(t, err)

	existing := configs[0]
	existing.PollInterval = time.Hour
	admin := newStubAdmin(existing)

	require.NoError(t, NewCatalogue(path, admin).Sync(context.Background()))

	added, updated := admin.calls()
	assert.Empty(t, added)
	assert.Equal(t, []string{"samgov"}, updated)
}

func TestCatalogue_Sync_SkipsIdenticalSources(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), catalogueYAML)
	configs, err := LoadCatalogue(path)
	require.NoError(t, err)
	admin := newStubAdmin(configs[0])

	require.NoError(t, NewCatalogue(path, admin).Sync(context.Background()))

	added, updated := admin.calls()
	assert.Empty(t, added)
	assert.Empty(t, updated)
}

func TestCatalogue_Sync_LeavesAbsentSourcesAlone(t *testing.T) {
	path := writeCatalogue(t, t.TempDir(), "sources: []\n")
	admin := newStubAdmin(domain.SourceConfig{ID: "keeper", Type: "samgov"})

	require.NoError(t, NewCatalogue(path, admin).Sync(context.Background()))

	added, updated := admin.calls()
	assert.Empty(t, added)
	assert.Empty(t, updated)
	_, err := admin.Get(context.Background(), "keeper")
	assert.NoError(t, err)
}

func TestCatalogue_Watch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogue(t, dir, "sources: []\n")
	admin := newStubAdmin()

	cat := NewCatalogue(path, admin)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cat.Watch(ctx))
	t.Cleanup(cat.Stop)

	writeCatalogue(t, dir, catalogueYAML)

	require.Eventually(t, func() bool {
		added, _ := admin.calls()
		return len(added) == 1 && added[0] == "samgov"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCatalogue_Watch_MalformedFileKeepsState(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogue(t, dir, catalogueYAML)
	admin := newStubAdmin()

	cat := NewCatalogue(path, admin)
	require.NoError(t, cat.Sync(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cat.Watch(ctx))
	t.Cleanup(cat.Stop)

	writeCatalogue(t, dir, ":: not yaml ::")

	// The watcher logs the parse failure; the registered source stays.
	time.Sleep(2 * catalogueDebounce)
	_, err := admin.Get(context.Background(), "samgov")
	assert.NoError(t, err)
}
