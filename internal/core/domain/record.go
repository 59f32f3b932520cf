package domain

import (
	"fmt"
	"time"
)

// RecordType classifies a normalised record.
type RecordType string

// Record types produced by adapters.
const (
	RecordOpportunity  RecordType = "opportunity"
	RecordContract     RecordType = "contract"
	RecordOrganisation RecordType = "organisation"
	RecordDocument     RecordType = "document"
)

// RecordKey is the composite deduplication key. Re-ingesting the same
// external id from the same source must update, never duplicate, the
// stored record.
type RecordKey struct {
	// SourceID identifies the provider the record came from.
	SourceID string

	// ExternalID is the provider's own identifier for the record.
	ExternalID string
}

// String renders the key for logs and cache keys.
func (k RecordKey) String() string {
	return k.SourceID + "/" + k.ExternalID
}

// Validate checks both halves of the key are present.
func (k RecordKey) Validate() error {
	if k.SourceID == "" || k.ExternalID == "" {
		return fmt.Errorf("%w: record key requires source id and external id", ErrInvalidInput)
	}
	return nil
}

// NormalizedRecord is the provider-agnostic shape for an opportunity,
// contract, organisation, or document. Adapters produce it; the core
// never inspects provider payloads directly.
type NormalizedRecord struct {
	// Key is the (source id, external id) deduplication key.
	Key RecordKey

	// Type classifies the record.
	Type RecordType

	// Title is the record's display title.
	Title string

	// Description is the free-text body, if the provider supplies one.
	Description string

	// Agency is the contracting agency or buyer.
	Agency string

	// Classification is the provider's category code (NAICS, CPV, ...).
	Classification string

	// Value is the monetary value, zero when unknown.
	Value float64

	// Currency qualifies Value (ISO 4217).
	Currency string

	// URL points at the provider's canonical page for the record.
	URL string

	// PostedAt is when the provider published the record.
	PostedAt time.Time

	// CloseAt is the response deadline for opportunities.
	CloseAt time.Time

	// Urgent requests top pipeline priority for this record's jobs.
	Urgent bool

	// Attributes carries provider fields with no normalised slot.
	Attributes map[string]string

	// Score is filled by the analyze stage's scorer.
	Score float64

	// Enrichment fields, filled by the enrich and crossref stages.

	// PriorCount is the number of earlier records for the same agency
	// and classification.
	PriorCount int

	// RelatedKeys links records discovered during cross-referencing.
	RelatedKeys []RecordKey

	// IngestedAt is when the record entered the pipeline.
	IngestedAt time.Time
}

// Validate is the per-record check run by the normalize stage. A failure
// here is recorded in the job's error list and never aborts the batch.
func (r *NormalizedRecord) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	switch r.Type {
	case RecordOpportunity, RecordContract, RecordOrganisation, RecordDocument:
	default:
		return fmt.Errorf("%w: record %s: unknown type %q", ErrInvalidInput, r.Key, r.Type)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: record %s: title is required", ErrInvalidInput, r.Key)
	}
	return nil
}

// RawBatch is the unparsed payload returned by one poll of one source.
// It is owned transiently by the orchestrator until handed to the
// source's adapter for parsing.
type RawBatch struct {
	// SourceID identifies the source that was polled.
	SourceID string

	// ContentType is the payload's media type as reported upstream.
	ContentType string

	// Payload is the raw response body.
	Payload []byte

	// FetchedAt is when the poll completed.
	FetchedAt time.Time

	// LastModified and ETag are upstream cache validators, echoed back on
	// the next poll to skip reprocessing unchanged data.
	LastModified string
	ETag         string

	// NotModified reports an upstream 304; the batch carries no payload
	// and the poll still counts as a success.
	NotModified bool

	// Cursor is the opaque pagination token to resume from next poll.
	Cursor string
}
