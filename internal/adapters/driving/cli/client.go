package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// apiClient is a minimal JSON client for the engine's admin API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the engine running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("engine returned %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, in, out any) error {
	return c.do(http.MethodPost, path, in, out)
}

func (c *apiClient) put(path string, in, out any) error {
	return c.do(http.MethodPut, path, in, out)
}

func (c *apiClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

// Wire shapes of the admin API. Durations travel as Go duration strings.

type sourceInfo struct {
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
}

type sourceStatusInfo struct {
	Source              sourceInfo `json:"source"`
	Polls               int        `json:"polls"`
	Failures            int        `json:"failures"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RecordsProcessed    int        `json:"records_processed"`
	RecordsRejected     int        `json:"records_rejected"`
	Uptime              float64    `json:"uptime"`
	QuotaUtilisation    float64    `json:"quota_utilisation"`
	RemainingQuota      int        `json:"remaining_quota"`
	NextPoll            *time.Time `json:"next_poll,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	Polling             bool       `json:"polling"`
}

type stageStatsInfo struct {
	Stage     string `json:"stage"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Retried   int    `json:"retried"`
	Dropped   int    `json:"dropped"`
}
