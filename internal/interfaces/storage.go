package interfaces

import (
	"context"
	"time"

	"github.com/planhound/planhound/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	ScanJobStore() ScanJobStore
	QueueStore() QueueStore
	SubscriberStore() SubscriberStore
	MatchStore() MatchStore
	RunItemStore() RunItemStore
	DeliveryStore() DeliveryStore

	Close() error
}

// ScanJobStore persists scan jobs and their inline checkpoints.
// The checkpoint is mutated only by the worker holding the job's queue
// lease, so writes are last-writer-wins within a run.
type ScanJobStore interface {
	Save(ctx context.Context, job *models.ScanJob) error
	Get(ctx context.Context, id string) (*models.ScanJob, error)
	List(ctx context.Context) ([]*models.ScanJob, error)
	Delete(ctx context.Context, id string) error

	// UpdateStatus writes only the status field.
	UpdateStatus(ctx context.Context, id, status string) error

	// GetStatus re-reads just the status, used for the cooperative-cancel
	// check at every document boundary.
	GetStatus(ctx context.Context, id string) (string, error)

	// UpdateCheckpoint flushes the run cursor.
	UpdateCheckpoint(ctx context.Context, id string, cp *models.Checkpoint) error

	// ClearCheckpoint zeroes the run cursor (clean completion or cancel).
	ClearCheckpoint(ctx context.Context, id string) error

	UpdateStatistics(ctx context.Context, id string, stats *models.JobStatistics) error
	SetLastRunDate(ctx context.Context, id, date string) error
	SetTargetDate(ctx context.Context, id, date string) error
	SetLastError(ctx context.Context, id, msg string) error
}

// QueueStore is the single-flight scan queue.
type QueueStore interface {
	// Admit inserts a waiting entry under its deterministic key. If an entry
	// with that key already exists in a non-terminal state the call is a
	// no-op and returns the existing entry with admitted=false.
	Admit(ctx context.Context, entry *models.QueueEntry) (existing *models.QueueEntry, admitted bool, err error)

	// Lease atomically claims the oldest eligible waiting entry (backoff
	// window elapsed), marking it active. Returns nil when the queue is empty.
	Lease(ctx context.Context) (*models.QueueEntry, error)

	// Complete marks the entry terminal-successful.
	Complete(ctx context.Context, key string) error

	// Fail records a failed attempt. Non-terminal failures return the entry
	// to waiting with the given backoff window; terminal failures mark it
	// failed.
	Fail(ctx context.Context, key string, entryErr error, backoffUntil time.Time, terminal bool) error

	Get(ctx context.Context, key string) (*models.QueueEntry, error)
	CountWaiting(ctx context.Context) (int, error)

	// ResetActive returns orphaned active entries to waiting. Called on
	// startup; this is the visibility-timeout realization for crashed
	// workers (resumption is safe because processing is checkpointed).
	ResetActive(ctx context.Context) (int, error)

	// PurgeTerminal removes completed/failed entries older than the cutoff.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

// SubscriberStore persists subscribers.
type SubscriberStore interface {
	Save(ctx context.Context, s *models.Subscriber) error
	Get(ctx context.Context, id string) (*models.Subscriber, error)
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*models.Subscriber, error)
	ListByIDs(ctx context.Context, ids []string) ([]*models.Subscriber, error)

	// RecordEmail bumps the subscriber's delivery counters.
	RecordEmail(ctx context.Context, id string, at time.Time) error
}

// MatchStore persists confirmed match records.
type MatchStore interface {
	Save(ctx context.Context, m *models.MatchRecord) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*models.MatchRecord, error)
}

// RunItemStore persists per-document audit records when auditing is enabled.
type RunItemStore interface {
	Save(ctx context.Context, item *models.DailyRunItem) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*models.DailyRunItem, error)
	PurgeByJob(ctx context.Context, jobID string) (int, error)
}

// DeliveryStore persists email delivery attempts.
type DeliveryStore interface {
	Save(ctx context.Context, d *models.DeliveryRecord) error
	ListByJob(ctx context.Context, jobID string) ([]*models.DeliveryRecord, error)
}
