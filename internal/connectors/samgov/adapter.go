package samgov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// AdapterType is the registry key for this adapter.
const AdapterType = "samgov"

// DefaultPageSize is the records-per-page requested from the API.
const DefaultPageSize = 100

// dateLayout is the MM/dd/yyyy format the opportunities API expects.
const dateLayout = "01/02/2006"

// Ensure Adapter implements the port.
var _ driven.SourceAdapter = (*Adapter)(nil)

// Adapter speaks the SAM.gov opportunities search API.
type Adapter struct {
	now func() time.Time
}

// New creates the SAM.gov adapter.
func New() *Adapter {
	return &Adapter{now: time.Now}
}

// Type implements driven.SourceAdapter.
func (a *Adapter) Type() string { return AdapterType }

// BuildRequest implements driven.SourceAdapter. The api_key option is
// required; posted_days (default 7) bounds the sweep window.
func (a *Adapter) BuildRequest(ctx context.Context, cfg domain.SourceConfig, cursor string, prev *domain.RawBatch) (*http.Request, error) {
	apiKey := cfg.Options["api_key"]
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	postedDays := 7
	if raw := cfg.Options["posted_days"]; raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			postedDays = days
		}
	}
	postedFrom := cur.PostedFrom
	if postedFrom == "" {
		postedFrom = a.now().AddDate(0, 0, -postedDays).Format(dateLayout)
	}

	query := url.Values{}
	query.Set("api_key", apiKey)
	query.Set("postedFrom", postedFrom)
	query.Set("postedTo", a.now().Format(dateLayout))
	query.Set("limit", strconv.Itoa(DefaultPageSize))
	query.Set("offset", strconv.Itoa(cur.Offset))
	if naics := cfg.Options["naics"]; naics != "" {
		query.Set("ncode", naics)
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/opportunities/v2/search?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("samgov: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// Conditional fetch only makes sense from the start of a sweep.
	if prev != nil && cur.Offset == 0 {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	return req, nil
}

// searchResponse is the subset of the opportunities schema the adapter
// reads.
type searchResponse struct {
	TotalRecords      int           `json:"totalRecords"`
	OpportunitiesData []opportunity `json:"opportunitiesData"`
}

type opportunity struct {
	NoticeID           string `json:"noticeId"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	FullParentPathName string `json:"fullParentPathName"`
	NaicsCode          string `json:"naicsCode"`
	PostedDate         string `json:"postedDate"`
	ResponseDeadLine   string `json:"responseDeadLine"`
	UILink             string `json:"uiLink"`
	Type               string `json:"type"`
	Award              *struct {
		Amount string `json:"amount"`
	} `json:"award"`
}

// Parse implements driven.SourceAdapter. It maps opportunity notices to
// normalised records and advances the offset cursor on the batch when
// more pages remain.
func (a *Adapter) Parse(batch *domain.RawBatch, cfg domain.SourceConfig) ([]domain.NormalizedRecord, error) {
	var resp searchResponse
	if err := json.Unmarshal(batch.Payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	records := make([]domain.NormalizedRecord, 0, len(resp.OpportunitiesData))
	for _, opp := range resp.OpportunitiesData {
		if opp.NoticeID == "" {
			continue
		}
		rec := domain.NormalizedRecord{
			Key:            domain.RecordKey{SourceID: cfg.ID, ExternalID: opp.NoticeID},
			Type:           recordType(opp),
			Title:          opp.Title,
			Description:    opp.Description,
			Agency:         agency(opp.FullParentPathName),
			Classification: opp.NaicsCode,
			URL:            opp.UILink,
			Currency:       "USD",
		}
		if opp.Award != nil && opp.Award.Amount != "" {
			if amount, err := strconv.ParseFloat(opp.Award.Amount, 64); err == nil {
				rec.Value = amount
			}
		}
		if t, err := time.Parse("2006-01-02", opp.PostedDate); err == nil {
			rec.PostedAt = t
		}
		if t, err := time.Parse(time.RFC3339, opp.ResponseDeadLine); err == nil {
			rec.CloseAt = t
		}
		records = append(records, rec)
	}

	cur, err := DecodeCursor(batch.Cursor)
	if err != nil {
		cur = NewCursor()
	}
	next := cur.Offset + len(resp.OpportunitiesData)
	if next < resp.TotalRecords && len(resp.OpportunitiesData) > 0 {
		batch.Cursor = (&Cursor{Version: CursorVersion, Offset: next, PostedFrom: cur.PostedFrom}).Encode()
	} else {
		// Sweep complete; the next poll starts a fresh window.
		batch.Cursor = ""
	}
	return records, nil
}

// recordType maps a notice type onto the normalised taxonomy. Award
// notices become contracts; everything else is an opportunity.
func recordType(opp opportunity) domain.RecordType {
	if strings.EqualFold(opp.Type, "Award Notice") || opp.Award != nil {
		return domain.RecordContract
	}
	return domain.RecordOpportunity
}

// agency takes the top level of the dotted parent path.
func agency(path string) string {
	if path == "" {
		return ""
	}
	head, _, _ := strings.Cut(path, ".")
	return strings.TrimSpace(head)
}
