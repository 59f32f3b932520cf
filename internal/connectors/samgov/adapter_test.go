package samgov

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
)

func samConfig() domain.SourceConfig {
	return domain.SourceConfig{
		ID:      "sam",
		Type:    AdapterType,
		BaseURL: "https://api.sam.gov",
		Options: map[string]string{"api_key": "test-key"},
	}
}

func TestAdapter_BuildRequest(t *testing.T) {
	adapter := New()
	adapter.now = func() time.Time { return time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC) }

	req, err := adapter.BuildRequest(context.Background(), samConfig(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "/opportunities/v2/search", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "08/21/2026", q.Get("postedFrom"))
	assert.Equal(t, "08/28/2026", q.Get("postedTo"))
	assert.Equal(t, "100", q.Get("limit"))
	assert.Equal(t, "0", q.Get("offset"))
}

func TestAdapter_BuildRequest_MissingKey(t *testing.T) {
	cfg := samConfig()
	cfg.Options = nil

	_, err := New().BuildRequest(context.Background(), cfg, "", nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAdapter_BuildRequest_ResumesCursor(t *testing.T) {
	cursor := (&Cursor{Version: CursorVersion, Offset: 200, PostedFrom: "08/01/2026"}).Encode()

	req, err := New().BuildRequest(context.Background(), samConfig(), cursor, nil)
	require.NoError(t, err)
	q := req.URL.Query()
	assert.Equal(t, "200", q.Get("offset"))
	assert.Equal(t, "08/01/2026", q.Get("postedFrom"))
}

func TestAdapter_BuildRequest_ConditionalOnlyAtSweepStart(t *testing.T) {
	prev := &domain.RawBatch{ETag: `"v7"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}

	req, err := New().BuildRequest(context.Background(), samConfig(), "", prev)
	require.NoError(t, err)
	assert.Equal(t, `"v7"`, req.Header.Get("If-None-Match"))
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", req.Header.Get("If-Modified-Since"))

	midSweep := (&Cursor{Version: CursorVersion, Offset: 100}).Encode()
	req, err = New().BuildRequest(context.Background(), samConfig(), midSweep, prev)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("If-None-Match"))
}

func TestAdapter_Parse(t *testing.T) {
	payload := `{
		"totalRecords": 2,
		"opportunitiesData": [
			{
				"noticeId": "n-1",
				"title": "Road Resurfacing",
				"fullParentPathName": "TRANSPORTATION, DEPARTMENT OF.FEDERAL HIGHWAY ADMIN",
				"naicsCode": "237310",
				"postedDate": "2026-08-20",
				"responseDeadLine": "2026-09-15T17:00:00-04:00",
				"uiLink": "https://sam.gov/opp/n-1/view",
				"type": "Solicitation"
			},
			{
				"noticeId": "n-2",
				"title": "Bridge Award",
				"type": "Award Notice",
				"award": {"amount": "1500000"}
			}
		]
	}`
	batch := &domain.RawBatch{SourceID: "sam", Payload: []byte(payload)}

	records, err := New().Parse(batch, samConfig())
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, domain.RecordKey{SourceID: "sam", ExternalID: "n-1"}, first.Key)
	assert.Equal(t, domain.RecordOpportunity, first.Type)
	assert.Equal(t, "TRANSPORTATION, DEPARTMENT OF", first.Agency)
	assert.Equal(t, "237310", first.Classification)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), first.PostedAt)
	assert.False(t, first.CloseAt.IsZero())

	second := records[1]
	assert.Equal(t, domain.RecordContract, second.Type)
	assert.Equal(t, 1500000.0, second.Value)
	assert.Equal(t, "USD", second.Currency)

	// Two of two records fetched: the sweep is complete.
	assert.Empty(t, batch.Cursor)
}

func TestAdapter_Parse_AdvancesCursor(t *testing.T) {
	payload := `{"totalRecords": 150, "opportunitiesData": [{"noticeId": "n-1", "title": "x"}]}`
	batch := &domain.RawBatch{SourceID: "sam", Payload: []byte(payload)}

	_, err := New().Parse(batch, samConfig())
	require.NoError(t, err)
	require.NotEmpty(t, batch.Cursor)

	cur, err := DecodeCursor(batch.Cursor)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Offset)
}

func TestAdapter_Parse_Malformed(t *testing.T) {
	batch := &domain.RawBatch{Payload: []byte("<html>maintenance</html>")}

	_, err := New().Parse(batch, samConfig())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAdapter_Parse_SkipsRecordsWithoutID(t *testing.T) {
	payload := `{"totalRecords": 2, "opportunitiesData": [{"title": "no id"}, {"noticeId": "n-2", "title": "ok"}]}`
	batch := &domain.RawBatch{SourceID: "sam", Payload: []byte(payload)}

	records, err := New().Parse(batch, samConfig())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n-2", records[0].Key.ExternalID)
}

func TestCursor_EncodeDecodeRoundtrip(t *testing.T) {
	cur := &Cursor{Version: CursorVersion, Offset: 300, PostedFrom: "08/01/2026"}
	decoded, err := DecodeCursor(cur.Encode())
	require.NoError(t, err)
	assert.Equal(t, cur, decoded)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	_, err := DecodeCursor("not base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
