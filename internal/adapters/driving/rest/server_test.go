package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
)

// fakeAdmin is an in-memory SourceAdmin for handler tests.
type fakeAdmin struct {
	configs map[string]domain.SourceConfig
}

var _ driving.SourceAdmin = (*fakeAdmin)(nil)

func newFakeAdmin(configs ...domain.SourceConfig) *fakeAdmin {
	a := &fakeAdmin{configs: make(map[string]domain.SourceConfig)}
	for _, cfg := range configs {
		a.configs[cfg.ID] = cfg
	}
	return a
}

func (a *fakeAdmin) Get(_ context.Context, id string) (*domain.SourceConfig, error) {
	cfg, ok := a.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cfg, nil
}

func (a *fakeAdmin) List(context.Context) ([]domain.SourceConfig, error) {
	out := make([]domain.SourceConfig, 0, len(a.configs))
	for _, cfg := range a.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (a *fakeAdmin) Add(_ context.Context, cfg domain.SourceConfig) error {
	if _, ok := a.configs[cfg.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if cfg.ID == "" {
		return domain.ErrInvalidInput
	}
	a.configs[cfg.ID] = cfg
	return nil
}

func (a *fakeAdmin) Update(_ context.Context, cfg domain.SourceConfig) error {
	if _, ok := a.configs[cfg.ID]; !ok {
		return domain.ErrNotFound
	}
	a.configs[cfg.ID] = cfg
	return nil
}

func (a *fakeAdmin) Enable(_ context.Context, id string) error {
	cfg, ok := a.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	cfg.Enabled = true
	a.configs[id] = cfg
	return nil
}

func (a *fakeAdmin) Disable(_ context.Context, id string) error {
	cfg, ok := a.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	cfg.Enabled = false
	a.configs[id] = cfg
	return nil
}

func (a *fakeAdmin) Remove(_ context.Context, id string) error {
	cfg, ok := a.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cfg.Enabled {
		return domain.ErrSourceEnabled
	}
	delete(a.configs, id)
	return nil
}

func (a *fakeAdmin) Status(_ context.Context, id string) (*domain.SourceStatus, error) {
	cfg, ok := a.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.SourceStatus{
		Config: cfg,
		Metrics: domain.SourceMetrics{
			SourceID:         id,
			Polls:            10,
			Failures:         1,
			RecordsProcessed: 240,
		},
		RemainingQuota: 42,
	}, nil
}

func (a *fakeAdmin) ResetQuota(_ context.Context, id string) error {
	if _, ok := a.configs[id]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

// fakeIngest records PollNow calls.
type fakeIngest struct {
	polled  []string
	pollErr error
}

var _ driving.IngestControl = (*fakeIngest)(nil)

func (f *fakeIngest) Start(context.Context) error { return nil }
func (f *fakeIngest) Stop(context.Context) error  { return nil }

func (f *fakeIngest) PollNow(_ context.Context, sourceID string) error {
	if f.pollErr != nil {
		return f.pollErr
	}
	f.polled = append(f.polled, sourceID)
	return nil
}

func (f *fakeIngest) NextPoll(string) (time.Time, bool) { return time.Time{}, false }

// fakeStats returns fixed pipeline counters.
type fakeStats struct{}

var _ driving.PipelineStats = (*fakeStats)(nil)

func (fakeStats) Stats() []driving.QueueStats {
	return []driving.QueueStats{
		{Stage: domain.StageNormalize, Waiting: 2, Completed: 40},
		{Stage: domain.StageEnrich, Active: 1, Completed: 38},
	}
}

func testServer(admin driving.SourceAdmin, ingest driving.IngestControl) *Server {
	return NewServer(admin, ingest, fakeStats{}, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleConfig() domain.SourceConfig {
	return domain.SourceConfig{
		ID:           "samgov",
		Type:         "samgov",
		BaseURL:      "https://api.sam.gov/opportunities/v2/search",
		AuthMode:     domain.AuthAPIKey,
		PollInterval: 30 * time.Minute,
		Quota:        domain.QuotaPolicy{RequestsPerHour: 1000, Burst: 5},
		Enabled:      true,
	}
}

func TestServer_Health(t *testing.T) {
	s := testServer(newFakeAdmin(), &fakeIngest{})

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListSources(t *testing.T) {
	s := testServer(newFakeAdmin(sampleConfig()), &fakeIngest{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sources", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []sourcePayload `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "samgov", body.Sources[0].ID)
	assert.Equal(t, "30m0s", body.Sources[0].PollInterval)
}

func TestServer_AddSource(t *testing.T) {
	admin := newFakeAdmin()
	s := testServer(admin, &fakeIngest{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources", sourcePayload{
		ID:           "ted",
		Type:         "httpjson",
		PollInterval: "1h",
		QuotaHourly:  600,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	stored, err := admin.Get(context.Background(), "ted")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, stored.PollInterval)
	assert.Equal(t, 600, stored.Quota.RequestsPerHour)
}

func TestServer_AddSource_Duplicate(t *testing.T) {
	s := testServer(newFakeAdmin(sampleConfig()), &fakeIngest{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources", sourcePayload{ID: "samgov", Type: "samgov"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_AddSource_BadDuration(t *testing.T) {
	s := testServer(newFakeAdmin(), &fakeIngest{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources", sourcePayload{
		ID:           "ted",
		Type:         "httpjson",
		PollInterval: "whenever",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetSource_NotFound(t *testing.T) {
	s := testServer(newFakeAdmin(), &fakeIngest{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sources/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_UpdateSource(t *testing.T) {
	admin := newFakeAdmin(sampleConfig())
	s := testServer(admin, &fakeIngest{})

	rec := doRequest(t, s, http.MethodPut, "/api/v1/sources/samgov", sourcePayload{
		Type:         "samgov",
		PollInterval: "15m",
		Enabled:      true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := admin.Get(context.Background(), "samgov")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, stored.PollInterval)
}

func TestServer_EnableDisable(t *testing.T) {
	admin := newFakeAdmin(sampleConfig())
	s := testServer(admin, &fakeIngest{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources/samgov/disable", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	stored, _ := admin.Get(context.Background(), "samgov")
	assert.False(t, stored.Enabled)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/sources/samgov/enable", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	stored, _ = admin.Get(context.Background(), "samgov")
	assert.True(t, stored.Enabled)
}

func TestServer_RemoveEnabledSourceConflicts(t *testing.T) {
	s := testServer(newFakeAdmin(sampleConfig()), &fakeIngest{})

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/sources/samgov", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_RemoveDisabledSource(t *testing.T) {
	cfg := sampleConfig()
	cfg.Enabled = false
	admin := newFakeAdmin(cfg)
	s := testServer(admin, &fakeIngest{})

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/sources/samgov", nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err := admin.Get(context.Background(), "samgov")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServer_SourceStatus(t *testing.T) {
	s := testServer(newFakeAdmin(sampleConfig()), &fakeIngest{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sources/samgov/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body statusPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10, body.Polls)
	assert.Equal(t, 1, body.Failures)
	assert.Equal(t, 240, body.RecordsProcessed)
	assert.Equal(t, 42, body.RemainingQuota)
	assert.InDelta(t, 0.9, body.Uptime, 0.001)
}

func TestServer_PollNow(t *testing.T) {
	ingest := &fakeIngest{}
	s := testServer(newFakeAdmin(sampleConfig()), ingest)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources/samgov/poll", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"samgov"}, ingest.polled)
}

func TestServer_PollNow_QuotaExhausted(t *testing.T) {
	ingest := &fakeIngest{pollErr: domain.ErrQuotaExhausted}
	s := testServer(newFakeAdmin(sampleConfig()), ingest)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/sources/samgov/poll", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServer_PipelineStats(t *testing.T) {
	s := testServer(newFakeAdmin(), &fakeIngest{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/pipeline/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stages []stageStatsPayload `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Stages, 2)
	assert.Equal(t, "normalize", body.Stages[0].Stage)
	assert.Equal(t, 2, body.Stages[0].Waiting)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tenderline",
		Name:      "test_total",
	})
	registry.MustRegister(counter)
	counter.Inc()

	s := NewServer(newFakeAdmin(), &fakeIngest{}, fakeStats{}, registry)

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenderline_test_total 1")
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := testServer(newFakeAdmin(sampleConfig()), &fakeIngest{})
	require.NoError(t, s.Start("127.0.0.1:0"))

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
