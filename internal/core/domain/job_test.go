package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Next(t *testing.T) {
	assert.Equal(t, StageEnrich, StageNormalize.Next())
	assert.Equal(t, StageCrossref, StageEnrich.Next())
	assert.Equal(t, StageAnalyze, StageCrossref.Next())
	assert.Equal(t, Stage(""), StageAnalyze.Next())
}

func TestJobPriority(t *testing.T) {
	tests := []struct {
		name       string
		urgent     bool
		fastLane   bool
		recordType RecordType
		want       int
	}{
		{"plain document", false, false, RecordDocument, 0},
		{"opportunity", false, false, RecordOpportunity, 10},
		{"fast-lane contract", false, true, RecordContract, 25},
		{"fast-lane opportunity", false, true, RecordOpportunity, 35},
		{"urgent beats everything", true, false, RecordDocument, 100},
		{"all bonuses stack", true, true, RecordOpportunity, 135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JobPriority(tt.urgent, tt.fastLane, tt.recordType))
		})
	}
}

func TestStagePayload_TaggedUnion(t *testing.T) {
	recs := []NormalizedRecord{{Key: RecordKey{SourceID: "s", ExternalID: "1"}}}

	payloads := []StagePayload{
		NormalizePayload{Batch: recs},
		EnrichPayload{Batch: recs},
		CrossrefPayload{Batch: recs},
		AnalyzePayload{Batch: recs},
	}

	wantStages := []Stage{StageNormalize, StageEnrich, StageCrossref, StageAnalyze}
	for i, p := range payloads {
		assert.Equal(t, wantStages[i], p.Stage())
		assert.Len(t, p.Records(), 1)
	}
}
