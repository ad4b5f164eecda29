package domain

import "time"

// FieldValues maps a field name to its JSON-like value (string, float64,
// bool, []any, map[string]any or nil).
type FieldValues map[string]any

// Confidences maps a field name to a score in [0, 1].
type Confidences map[string]float64

// Record is a set of field values with their co-resident confidences.
type Record struct {
	Values     FieldValues `json:"values"`
	Confidence Confidences `json:"field_confidence"`
}

func NewRecord() Record {
	return Record{Values: FieldValues{}, Confidence: Confidences{}}
}

// Clone returns a shallow copy of the maps. Values themselves are shared.
func (r Record) Clone() Record {
	out := NewRecord()
	for k, v := range r.Values {
		out.Values[k] = v
	}
	for k, c := range r.Confidence {
		out.Confidence[k] = c
	}
	return out
}

// Set stores value and confidence together.
func (r Record) Set(field string, value any, confidence float64) {
	r.Values[field] = value
	r.Confidence[field] = confidence
}

// SourceInfo is provenance metadata merged key by key across extractions.
type SourceInfo map[string]any

// Candidate is a freshly extracted record awaiting merge.
type Candidate struct {
	Record
	SourceInfo SourceInfo `json:"source_info,omitempty"`
}

type Listing struct {
	ListingID           string      `json:"listing_id"`
	EntityName          string      `json:"entity_name"`
	EntityType          string      `json:"entity_type"`
	Slug                string      `json:"slug"`
	Fields              FieldValues `json:"fields"`
	FieldConfidence     Confidences `json:"field_confidence"`
	SourceInfo          SourceInfo  `json:"source_info,omitempty"`
	CanonicalCategories []string    `json:"canonical_categories"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// EntityRecord holds the entity-type specific attributes of a listing
// (court counts for a venue, and so on).
type EntityRecord struct {
	ListingID       string      `json:"listing_id"`
	EntityType      string      `json:"entity_type"`
	Fields          FieldValues `json:"fields"`
	FieldConfidence Confidences `json:"field_confidence"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type FieldWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type UpsertReport struct {
	ListingID      string         `json:"listing_id"`
	ListingCreated bool           `json:"listing_created"`
	EntityCreated  bool           `json:"entity_created"`
	ListingChanges []string       `json:"listing_changes"`
	EntityChanges  []string       `json:"entity_changes"`
	Rejected       []string       `json:"rejected,omitempty"`
	Warnings       []FieldWarning `json:"warnings,omitempty"`
	Threshold      float64        `json:"threshold"`
}

// Changed reports whether any stored value changed.
func (r UpsertReport) Changed() bool {
	return r.ListingCreated || r.EntityCreated || len(r.ListingChanges) > 0 || len(r.EntityChanges) > 0
}

type UpsertInput struct {
	EntityName string
	EntityType string
	Candidate  Candidate
	// Source labels the history rows written for this upsert ("manual_file", "inbox", ...).
	Source string
}

type UpsertResult struct {
	Listing Listing      `json:"listing"`
	Entity  EntityRecord `json:"entity"`
	Report  UpsertReport `json:"extraction_report"`
}

// MergeHistoryEntry is one persisted field decision.
type MergeHistoryEntry struct {
	ID              int64     `json:"id"`
	ListingID       string    `json:"listing_id"`
	Field           string    `json:"field"`
	Action          string    `json:"action"`
	OldValue        any       `json:"old_value"`
	NewValue        any       `json:"new_value"`
	OldConfidence   float64   `json:"old_confidence"`
	NewConfidence   float64   `json:"new_confidence"`
	FinalConfidence float64   `json:"final_confidence"`
	Threshold       float64   `json:"threshold"`
	Source          string    `json:"source"`
	Message         string    `json:"message,omitempty"`
	MergedAt        time.Time `json:"merged_at"`
}
