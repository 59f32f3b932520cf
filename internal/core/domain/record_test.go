package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordKey_String(t *testing.T) {
	key := RecordKey{SourceID: "samgov-prod", ExternalID: "W912QR25R0012"}
	assert.Equal(t, "samgov-prod/W912QR25R0012", key.String())
}

func TestRecordKey_Validate(t *testing.T) {
	assert.NoError(t, RecordKey{SourceID: "s", ExternalID: "e"}.Validate())
	assert.ErrorIs(t, RecordKey{SourceID: "s"}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, RecordKey{ExternalID: "e"}.Validate(), ErrInvalidInput)
}

func TestNormalizedRecord_Validate(t *testing.T) {
	rec := NormalizedRecord{
		Key:   RecordKey{SourceID: "s1", ExternalID: "x1"},
		Type:  RecordOpportunity,
		Title: "Bridge rehabilitation services",
	}
	assert.NoError(t, rec.Validate())

	t.Run("missing title", func(t *testing.T) {
		r := rec
		r.Title = ""
		assert.ErrorIs(t, r.Validate(), ErrInvalidInput)
	})

	t.Run("unknown type", func(t *testing.T) {
		r := rec
		r.Type = "tender"
		assert.ErrorIs(t, r.Validate(), ErrInvalidInput)
	})

	t.Run("missing key", func(t *testing.T) {
		r := rec
		r.Key.ExternalID = ""
		assert.ErrorIs(t, r.Validate(), ErrInvalidInput)
	})
}
