package models

import "time"

// MatchRecord is one confirmed FI-request match, persisted per run.
type MatchRecord struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	ObjectKey       string    `json:"object_key"`
	ProjectID       string    `json:"project_id"`
	FileName        string    `json:"file_name"`
	FIType          string    `json:"fi_type"`
	ValidationQuote string    `json:"validation_quote"`
	Confidence      float64   `json:"confidence"`
	ExtractedAt     time.Time `json:"extracted_at"`
}

// ProjectMetadata is the enrichment record fetched per planning project.
type ProjectMetadata struct {
	PlanningID     string `json:"planning_id"`
	PlanningTitle  string `json:"planning_title"`
	PlanningStage  string `json:"planning_stage"`
	PlanningCounty string `json:"planning_county"`
	PlanningSector string `json:"planning_sector"`
	PlanningRegion string `json:"planning_region"`
	BiiURL         string `json:"bii_url,omitempty"`
}

// FIClassification is the structured result of the full LLM classification.
type FIClassification struct {
	IsFI            bool    `json:"is_fi"`
	MatchesType     bool    `json:"matches_type"`
	ValidationQuote string  `json:"validation_quote"`
	Confidence      float64 `json:"confidence"`
}

// DeliveryRecord is one durable email delivery attempt.
type DeliveryRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Recipient  string    `json:"recipient"`
	Kind       string    `json:"kind"` // "match_batch", "progress", "summary"
	MatchCount int       `json:"match_count"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Delivery kind constants
const (
	DeliveryKindMatchBatch = "match_batch"
	DeliveryKindProgress   = "progress"
	DeliveryKindSummary    = "summary"
)
