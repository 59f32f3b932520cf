package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// AdapterType is the registry key for this adapter.
const AdapterType = "httpjson"

// Ensure Adapter implements the port.
var _ driven.SourceAdapter = (*Adapter)(nil)

// Adapter is the generic JSON-API adapter. One instance serves every
// httpjson source; per-source OAuth token sources are cached so tokens
// are reused across poll cycles.
type Adapter struct {
	mu     sync.Mutex
	tokens map[string]oauth2.TokenSource
}

// New creates the httpjson adapter.
func New() *Adapter {
	return &Adapter{tokens: make(map[string]oauth2.TokenSource)}
}

// Type implements driven.SourceAdapter.
func (a *Adapter) Type() string { return AdapterType }

// BuildRequest implements driven.SourceAdapter.
func (a *Adapter) BuildRequest(ctx context.Context, cfg domain.SourceConfig, cursor string, prev *domain.RawBatch) (*http.Request, error) {
	parsed, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpjson: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if cursor != "" && parsed.CursorParam != "" {
		query := req.URL.Query()
		query.Set(parsed.CursorParam, cursor)
		req.URL.RawQuery = query.Encode()
	}

	// Conditional fetch only from the start of a sweep; mid-sweep pages
	// are always distinct resources.
	if prev != nil && cursor == "" {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}

	switch cfg.AuthMode {
	case domain.AuthAPIKey:
		req.Header.Set(parsed.APIKeyHeader, parsed.APIKey)
	case domain.AuthOAuth:
		token, err := a.token(ctx, cfg.ID, parsed)
		if err != nil {
			return nil, fmt.Errorf("httpjson: source %s: obtain token: %w", cfg.ID, err)
		}
		token.SetAuthHeader(req)
	}
	return req, nil
}

// token returns a cached client-credentials token for the source,
// refreshing through the token source when expired.
func (a *Adapter) token(ctx context.Context, sourceID string, cfg *Config) (*oauth2.Token, error) {
	a.mu.Lock()
	source, ok := a.tokens[sourceID]
	if !ok {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		source = cc.TokenSource(context.WithoutCancel(ctx))
		a.tokens[sourceID] = source
	}
	a.mu.Unlock()
	return source.Token()
}

// Parse implements driven.SourceAdapter.
func (a *Adapter) Parse(batch *domain.RawBatch, cfg domain.SourceConfig) ([]domain.NormalizedRecord, error) {
	parsed, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}

	rows, nextCursor, err := decodeRows(batch.Payload, parsed)
	if err != nil {
		return nil, err
	}

	records := make([]domain.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		id := stringField(row, parsed.IDField)
		if id == "" {
			continue
		}
		rec := domain.NormalizedRecord{
			Key:            domain.RecordKey{SourceID: cfg.ID, ExternalID: id},
			Type:           parsed.RecordType,
			Title:          stringField(row, parsed.TitleField),
			Description:    stringField(row, parsed.DescriptionField),
			Agency:         stringField(row, parsed.AgencyField),
			Classification: stringField(row, parsed.ClassificationField),
			URL:            stringField(row, parsed.URLField),
		}
		rec.Value = floatField(row, parsed.ValueField)
		rec.PostedAt = timeField(row, parsed.PostedField)
		rec.CloseAt = timeField(row, parsed.DeadlineField)
		records = append(records, rec)
	}

	batch.Cursor = nextCursor
	return records, nil
}

// decodeRows extracts the record array and the next-page token from the
// response body.
func decodeRows(payload []byte, cfg *Config) ([]map[string]any, string, error) {
	if cfg.RecordsPath == "" {
		var rows []map[string]any
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return rows, "", nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var rows []map[string]any
	if raw, ok := envelope[cfg.RecordsPath]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, "", fmt.Errorf("%w: field %q is not an array: %v", ErrMalformedResponse, cfg.RecordsPath, err)
		}
	}

	next := ""
	if cfg.NextCursorPath != "" {
		if raw, ok := envelope[cfg.NextCursorPath]; ok {
			// A null or missing token ends the sweep.
			_ = json.Unmarshal(raw, &next)
		}
	}
	return rows, next, nil
}

func stringField(row map[string]any, field string) string {
	if field == "" {
		return ""
	}
	switch v := row[field].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(row map[string]any, field string) float64 {
	if field == "" {
		return 0
	}
	switch v := row[field].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// timeField tries the formats procurement APIs actually send.
var timeLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

func timeField(row map[string]any, field string) time.Time {
	if field == "" {
		return time.Time{}
	}
	raw, ok := row[field].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
