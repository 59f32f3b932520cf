package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

// maxBodyBytes caps one poll's response body. Providers that page
// properly stay far under this; a runaway response fails the cycle
// instead of exhausting memory.
const maxBodyBytes = 32 << 20

// Fetcher executes adapter-built requests and maps HTTP outcomes onto
// the engine's error taxonomy. It never inspects payload shape; that is
// the adapter's job at parse time.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A nil client falls back to a client with
// a 30 second timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch performs one poll request for a source.
//
// Status mapping: 2xx yields a raw batch; 304 yields an empty batch
// flagged NotModified (still a successful poll); 429 yields a
// RateLimitError carrying the Retry-After hint; 5xx yields a
// TransientError. Anything else is a permanent fault for this cycle.
func (f *Fetcher) Fetch(ctx context.Context, sourceID string, req *http.Request) (*domain.RawBatch, error) {
	resp, err := f.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &domain.TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		io.Copy(io.Discard, resp.Body)
		return &domain.RawBatch{
			SourceID:    sourceID,
			FetchedAt:   time.Now(),
			NotModified: true,
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, &domain.RateLimitError{
			SourceID: sourceID,
			ResetAt:  retryAfter(resp, time.Now()),
		}

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &domain.TransientError{
			Err: fmt.Errorf("source %s: upstream status %d", sourceID, resp.StatusCode),
		}

	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("source %s: unexpected status %d", sourceID, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransientError{Err: fmt.Errorf("source %s: read body: %w", sourceID, err)}
	}

	return &domain.RawBatch{
		SourceID:     sourceID,
		ContentType:  resp.Header.Get("Content-Type"),
		Payload:      payload,
		FetchedAt:    time.Now(),
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}, nil
}

// retryAfter derives the advisory reset time from a 429 response.
// Providers send either delay seconds or an HTTP date; absent or
// unparsable headers fall back to one minute out.
func retryAfter(resp *http.Response, now time.Time) time.Time {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return now.Add(time.Minute)
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if at, err := http.ParseTime(header); err == nil {
		return at
	}
	return now.Add(time.Minute)
}
