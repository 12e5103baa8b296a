// Package models defines data structures for Planhound
package models

import "time"

// ScanJob is the unit of work: a recurring scan of the planning-document
// bucket for Further Information requests of one report type.
type ScanJob struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	DocumentType string        `json:"document_type"`
	Status       string        `json:"status"`
	Config       JobConfig     `json:"config"`
	Schedule     JobSchedule   `json:"schedule"`
	Checkpoint   Checkpoint    `json:"checkpoint"`
	Statistics   JobStatistics `json:"statistics"`
	Customers    []string      `json:"customers"` // Subscriber IDs attached to this job
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Job status constants
const (
	JobStatusActive     = "ACTIVE"
	JobStatusRunning    = "RUNNING"
	JobStatusPaused     = "PAUSED"
	JobStatusStopped    = "STOPPED"
	JobStatusCancelling = "CANCELLING"
	JobStatusError      = "ERROR"
)

// Document types a job can scan for.
const (
	DocTypeAcoustic      = "acoustic"
	DocTypeTransport     = "transport"
	DocTypeFlood         = "flood"
	DocTypeContamination = "contamination"
	DocTypeEcology       = "ecology"
	DocTypeArboricult    = "arboricultural"
	DocTypeEcological    = "ecological"
	DocTypeHeritage      = "heritage"
	DocTypeLighting      = "lighting"
	DocTypeOther         = "other"
)

// ValidDocumentTypes lists every accepted document_type value.
var ValidDocumentTypes = []string{
	DocTypeAcoustic, DocTypeTransport, DocTypeFlood, DocTypeContamination,
	DocTypeEcology, DocTypeArboricult, DocTypeEcological, DocTypeHeritage,
	DocTypeLighting, DocTypeOther,
}

// IsValidDocumentType reports whether t is an accepted document type.
func IsValidDocumentType(t string) bool {
	for _, v := range ValidDocumentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// JobConfig holds per-job classifier tuning.
type JobConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	ReviewThreshold     float64 `json:"review_threshold"`
	AutoProcess         bool    `json:"auto_process"`
	EnableVision        bool    `json:"enable_vision"`
}

// Schedule type constants
const (
	ScheduleDaily   = "DAILY"
	ScheduleWeekly  = "WEEKLY"
	ScheduleMonthly = "MONTHLY"
	ScheduleCustom  = "CUSTOM"
)

// JobSchedule describes when a job runs and how far back it scans.
type JobSchedule struct {
	Type         string `json:"type"`                    // DAILY, WEEKLY, MONTHLY, CUSTOM
	TimeOfDay    string `json:"time_of_day"`             // "HH:MM" in UTC
	DayOfWeek    *int   `json:"day_of_week,omitempty"`   // 0=Sunday, for WEEKLY; nil = any weekday
	CronExpr     string `json:"cron_expr,omitempty"`     // For CUSTOM
	LookbackDays int    `json:"lookback_days"`           // 1..365, default 1
	TargetDate   string `json:"target_date,omitempty"`   // "YYYY-MM-DD" manual-run override
	LastRunDate  string `json:"last_run_date,omitempty"` // "YYYY-MM-DD" of last successful run
}

// GetLookbackDays clamps lookback into [1,365].
func (s *JobSchedule) GetLookbackDays() int {
	d := s.LookbackDays
	if d < 1 {
		return 1
	}
	if d > 365 {
		return 365
	}
	return d
}

// Checkpoint is the durable per-run cursor, stored inline on the ScanJob.
// ScanStart/ScanEnd freeze the modification-time window for the life of the
// run so a resumed run scans exactly the window the original run chose.
type Checkpoint struct {
	LastProcessedIndex int       `json:"last_processed_index"`
	ProcessedCount     int       `json:"processed_count"`
	MatchesFound       int       `json:"matches_found"`
	LastProcessedKey   string    `json:"last_processed_key"`
	LastProcessedFile  string    `json:"last_processed_file"`
	ContinuationToken  string    `json:"continuation_token,omitempty"`
	ScanStart          time.Time `json:"scan_start_ts"`
	ScanEnd            time.Time `json:"scan_end_ts"`
	TotalDocuments     int       `json:"total_documents"`
	IsResuming         bool      `json:"is_resuming"`
	TriggeredBy        string    `json:"triggered_by,omitempty"` // Operator address for progress/summary mail
	AllMatchDetails    []MatchDetail `json:"all_match_details,omitempty"`
}

// IsZero reports whether the checkpoint holds no run state.
func (c *Checkpoint) IsZero() bool {
	return c.ProcessedCount == 0 && c.LastProcessedKey == "" && c.ScanStart.IsZero()
}

// MatchDetail is the append-only record of one confirmed match within a run,
// kept on the checkpoint for the final summary mail.
type MatchDetail struct {
	FileName        string    `json:"file_name"`
	ProjectID       string    `json:"project_id"`
	FIType          string    `json:"fi_type"`
	ValidationQuote string    `json:"validation_quote"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"ts"`
}

// JobStatistics holds lifetime counters for a job.
type JobStatistics struct {
	TotalRuns       int       `json:"total_runs"`
	TotalDocuments  int       `json:"total_documents"`
	TotalMatches    int       `json:"total_matches"`
	TotalEmails     int       `json:"total_emails"`
	TotalErrors     int       `json:"total_errors"`
	LastRunStarted  time.Time `json:"last_run_started"`
	LastRunFinished time.Time `json:"last_run_finished"`
	LastRunMatches  int       `json:"last_run_matches"`
}

// DailyRunItem audits one processed document when per-document auditing is
// enabled: which stage decided, and why.
type DailyRunItem struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	ObjectKey   string    `json:"object_key"`
	ProjectID   string    `json:"project_id"`
	FileName    string    `json:"file_name"`
	Stage       string    `json:"stage"`
	Matched     bool      `json:"matched"`
	Reason      string    `json:"reason,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
