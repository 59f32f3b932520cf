package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() SourceConfig {
	return SourceConfig{
		ID:           "samgov-prod",
		Name:         "SAM.gov Opportunities",
		Type:         "samgov",
		BaseURL:      "https://api.sam.gov/opportunities/v2",
		AuthMode:     AuthAPIKey,
		Quota:        QuotaPolicy{RequestsPerHour: 450, Burst: 5},
		PollInterval: 15 * time.Minute,
		Retry:        RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute},
		Enabled:      true,
	}
}

func TestSourceConfig_Validate_Success(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestSourceConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SourceConfig)
	}{
		{"missing id", func(c *SourceConfig) { c.ID = "" }},
		{"missing type", func(c *SourceConfig) { c.Type = "" }},
		{"zero quota", func(c *SourceConfig) { c.Quota.RequestsPerHour = 0 }},
		{"negative burst", func(c *SourceConfig) { c.Quota.Burst = -1 }},
		{"zero interval", func(c *SourceConfig) { c.PollInterval = 0 }},
		{"negative retries", func(c *SourceConfig) { c.Retry.MaxRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
		})
	}
}

func TestQuotaPolicy_Window(t *testing.T) {
	q := QuotaPolicy{RequestsPerHour: 100}
	assert.Equal(t, time.Hour, q.Window())
}

func TestSourceMetrics_Uptime(t *testing.T) {
	m := SourceMetrics{}
	assert.Equal(t, 1.0, m.Uptime(), "no polls yet means full uptime")

	m.Polls = 10
	m.Failures = 2
	assert.InDelta(t, 0.8, m.Uptime(), 0.001)
}
