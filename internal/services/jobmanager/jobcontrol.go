package jobmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// JobControl implements the operator surface over scan jobs.
type JobControl struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewJobControl creates a new job control service.
func NewJobControl(storage interfaces.StorageManager, logger *common.Logger) *JobControl {
	return &JobControl{
		storage: storage,
		logger:  logger,
	}
}

// CreateJob validates and persists a new scan job.
func (jc *JobControl) CreateJob(ctx context.Context, job *models.ScanJob) (*models.ScanJob, error) {
	if job.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if !models.IsValidDocumentType(job.DocumentType) {
		return nil, fmt.Errorf("invalid document type %q", job.DocumentType)
	}

	switch job.Schedule.Type {
	case models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleMonthly:
	case models.ScheduleCustom:
		if job.Schedule.CronExpr == "" {
			return nil, fmt.Errorf("CUSTOM schedule requires a cron expression")
		}
	case "":
		job.Schedule.Type = models.ScheduleDaily
	default:
		return nil, fmt.Errorf("invalid schedule type %q", job.Schedule.Type)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobStatusActive
	job.Checkpoint = models.Checkpoint{}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := jc.storage.ScanJobStore().Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	jc.logger.Info().Str("job_id", job.ID).Str("document_type", job.DocumentType).Msg("Scan job created")
	return job, nil
}

// StartJob returns a stopped, paused, or errored job to the schedulable
// state. A paused job's checkpoint is preserved so the next run resumes.
func (jc *JobControl) StartJob(ctx context.Context, jobID string) error {
	job, err := jc.mustGet(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == models.JobStatusRunning {
		return fmt.Errorf("job %s is currently running", jobID)
	}

	if err := jc.storage.ScanJobStore().UpdateStatus(ctx, jobID, models.JobStatusActive); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	// A resumable job goes straight back into the queue rather than waiting
	// for its next scheduled slot.
	if !job.Checkpoint.IsZero() {
		return jc.admit(ctx, job, "")
	}
	return nil
}

// StopJob takes a job out of scheduling. A running scan finishes its current
// run first; use CancelJob to interrupt one.
func (jc *JobControl) StopJob(ctx context.Context, jobID string) error {
	if _, err := jc.mustGet(ctx, jobID); err != nil {
		return err
	}
	if err := jc.storage.ScanJobStore().UpdateStatus(ctx, jobID, models.JobStatusStopped); err != nil {
		return fmt.Errorf("failed to stop job: %w", err)
	}
	return nil
}

// CancelJob interrupts a running scan. The worker notices at the next
// document boundary, clears the checkpoint, and exits without a summary,
// leaving the job ACTIVE and schedulable. A job that is not running has its
// checkpoint cleared and returns to ACTIVE immediately.
func (jc *JobControl) CancelJob(ctx context.Context, jobID string) error {
	job, err := jc.mustGet(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == models.JobStatusRunning {
		if err := jc.storage.ScanJobStore().UpdateStatus(ctx, jobID, models.JobStatusCancelling); err != nil {
			return fmt.Errorf("failed to request cancel: %w", err)
		}
		return nil
	}

	if err := jc.storage.ScanJobStore().ClearCheckpoint(ctx, jobID); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	if err := jc.storage.ScanJobStore().UpdateStatus(ctx, jobID, models.JobStatusActive); err != nil {
		return fmt.Errorf("failed to restore job: %w", err)
	}
	return nil
}

// RunNow admits the job for immediate execution, optionally scanning one
// whole target day. Non-blocking: returns once admission settles.
func (jc *JobControl) RunNow(ctx context.Context, jobID, targetDate string) error {
	job, err := jc.mustGet(ctx, jobID)
	if err != nil {
		return err
	}

	if targetDate != "" {
		if _, err := time.ParseInLocation("2006-01-02", targetDate, time.UTC); err != nil {
			return fmt.Errorf("invalid target date %q: %w", targetDate, err)
		}
	}

	switch job.Status {
	case models.JobStatusCancelling:
		return fmt.Errorf("job %s is cancelling", jobID)
	case models.JobStatusStopped:
		return fmt.Errorf("job %s is stopped", jobID)
	}

	return jc.admit(ctx, job, targetDate)
}

func (jc *JobControl) admit(ctx context.Context, job *models.ScanJob, targetDate string) error {
	entry := &models.QueueEntry{
		Key:         models.JobKey(job.ID),
		JobID:       job.ID,
		TargetDate:  targetDate,
		Force:       true,
		Status:      models.QueueStatusWaiting,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	existing, admitted, err := jc.storage.QueueStore().Admit(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to admit job: %w", err)
	}
	if !admitted {
		return fmt.Errorf("job %s already queued (status %s)", job.ID, existing.Status)
	}

	jc.logger.Info().Str("job_id", job.ID).Str("target_date", targetDate).Msg("Job admitted for immediate run")
	return nil
}

// SetTargetDate pins the next scheduled run to one whole UTC day. Pass an
// empty date to clear the pin.
func (jc *JobControl) SetTargetDate(ctx context.Context, jobID, targetDate string) error {
	if _, err := jc.mustGet(ctx, jobID); err != nil {
		return err
	}

	if targetDate != "" {
		if _, err := time.ParseInLocation("2006-01-02", targetDate, time.UTC); err != nil {
			return fmt.Errorf("invalid target date %q: %w", targetDate, err)
		}
	}

	if err := jc.storage.ScanJobStore().SetTargetDate(ctx, jobID, targetDate); err != nil {
		return fmt.Errorf("failed to set target date: %w", err)
	}
	return nil
}

// DeleteJob removes a job and its audit trail. Running jobs must be
// cancelled first.
func (jc *JobControl) DeleteJob(ctx context.Context, jobID string) error {
	job, err := jc.mustGet(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning || job.Status == models.JobStatusCancelling {
		return fmt.Errorf("job %s is running, cancel it first", jobID)
	}

	if _, err := jc.storage.RunItemStore().PurgeByJob(ctx, jobID); err != nil {
		jc.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to purge run items")
	}

	if err := jc.storage.ScanJobStore().Delete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	jc.logger.Info().Str("job_id", jobID).Msg("Scan job deleted")
	return nil
}

// ListJobs returns all scan jobs.
func (jc *JobControl) ListJobs(ctx context.Context) ([]*models.ScanJob, error) {
	return jc.storage.ScanJobStore().List(ctx)
}

// GetStatus returns the operator view of one job.
func (jc *JobControl) GetStatus(ctx context.Context, jobID string) (*interfaces.JobStatus, error) {
	job, err := jc.mustGet(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := &interfaces.JobStatus{Job: job}

	entry, err := jc.storage.QueueStore().Get(ctx, models.JobKey(jobID))
	if err != nil {
		jc.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to read queue entry")
	} else {
		status.QueueEntry = entry
	}

	return status, nil
}

func (jc *JobControl) mustGet(ctx context.Context, jobID string) (*models.ScanJob, error) {
	job, err := jc.storage.ScanJobStore().Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

// Ensure JobControl implements the interface
var _ interfaces.JobControl = (*JobControl)(nil)
