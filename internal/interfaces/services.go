package interfaces

import (
	"context"
	"time"

	"github.com/planhound/planhound/internal/models"
)

// Extractor turns a fetched document into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc *models.FetchedDocument) models.ExtractResult
}

// ClassifierPipeline runs the staged cheap-to-expensive cascade over one
// document's text and returns the stage-tagged decision.
type ClassifierPipeline interface {
	Classify(ctx context.Context, fileName, text, projectID, targetType string) (*models.Classification, error)
}

// EnrichedMatch pairs a confirmed match with its project metadata.
// Project is nil when the metadata lookup failed or returned nothing.
type EnrichedMatch struct {
	Match   models.MatchRecord
	Project *models.ProjectMetadata
}

// SubscriberBatch is the per-subscriber snapshot taken at a checkpoint flush.
type SubscriberBatch struct {
	Subscriber *models.Subscriber
	Matches    []EnrichedMatch
}

// SubscriberMatcher groups confirmed matches by subscriber and applies each
// subscriber's region/sector filters (fail-closed on missing metadata).
type SubscriberMatcher interface {
	BuildBatches(ctx context.Context, job *models.ScanJob, matches []models.MatchRecord) ([]SubscriberBatch, error)
}

// ProgressReport carries the operator progress-mail payload.
type ProgressReport struct {
	JobID         string
	JobName       string
	Processed     int
	Total         int
	MatchesFound  int
	RecentMatches []models.MatchDetail
}

// SummaryReport carries the operator run-summary payload.
type SummaryReport struct {
	JobID        string
	JobName      string
	Processed    int
	Total        int
	MatchesFound int
	EmailsSent   int
	Failures     []string
	Matches      []models.MatchDetail
	StartedAt    time.Time
	FinishedAt   time.Time
}

// NotificationDispatcher sends batched subscriber mail and operator mail,
// persisting a delivery-attempt record for every send.
type NotificationDispatcher interface {
	SendMatchBatch(ctx context.Context, jobID string, batch SubscriberBatch) error
	SendProgress(ctx context.Context, addr string, report ProgressReport) error
	SendSummary(ctx context.Context, addr string, report SummaryReport) error
}

// Scanner drives one leased job run end to end: window resolution, streaming
// enumeration, per-document classification, checkpointing, batched dispatch,
// and the memory governor.
type Scanner interface {
	Run(ctx context.Context, job *models.ScanJob, entry *models.QueueEntry) error
}

// JobStatus is the operator-facing view returned by GetStatus.
type JobStatus struct {
	Job         *models.ScanJob     `json:"job"`
	QueueEntry  *models.QueueEntry  `json:"queue_entry,omitempty"`
	LastSummary *SummaryReport      `json:"last_summary,omitempty"`
}

// JobControl is the minimal, stable operator surface over scan jobs.
// RunNow is non-blocking: it returns once admission succeeds and actual
// processing state is discovered via GetStatus.
type JobControl interface {
	CreateJob(ctx context.Context, job *models.ScanJob) (*models.ScanJob, error)
	StartJob(ctx context.Context, jobID string) error
	StopJob(ctx context.Context, jobID string) error
	CancelJob(ctx context.Context, jobID string) error
	RunNow(ctx context.Context, jobID, targetDate string) error
	SetTargetDate(ctx context.Context, jobID, targetDate string) error
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context) ([]*models.ScanJob, error)
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)
}
