package models

import "time"

// QueueEntry is one admission into the scan queue. The deterministic key
// "scan:<job_id>" gives single-flight admission: at most one entry per job
// may sit in a non-terminal state.
type QueueEntry struct {
	Key          string     `json:"key"` // "scan:" + job id
	JobID        string     `json:"job_id"`
	TargetDate   string     `json:"target_date,omitempty"` // "YYYY-MM-DD" manual-run override
	Force        bool       `json:"force,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	BackoffUntil time.Time  `json:"backoff_until"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  time.Time  `json:"completed_at"`
	Error        string     `json:"error,omitempty"`
}

// Queue entry status constants
const (
	QueueStatusWaiting   = "waiting"
	QueueStatusActive    = "active"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
)

// JobKey returns the deterministic queue key for a scan job.
func JobKey(jobID string) string {
	return "scan:" + jobID
}

// IsTerminal reports whether the entry can be superseded by a new admission.
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == QueueStatusCompleted || e.Status == QueueStatusFailed
}
