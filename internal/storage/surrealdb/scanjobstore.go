package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// jobSelectFields lists the fields to select from scan_job, aliasing job_id
// to id for struct mapping.
const jobSelectFields = "job_id AS id, name, document_type, status, config, schedule, checkpoint, statistics, customers, last_error, created_at, updated_at"

// ScanJobStore implements interfaces.ScanJobStore using SurrealDB.
type ScanJobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewScanJobStore creates a new ScanJobStore.
func NewScanJobStore(db *surrealdb.DB, logger *common.Logger) *ScanJobStore {
	return &ScanJobStore{db: db, logger: logger}
}

func (s *ScanJobStore) Save(ctx context.Context, job *models.ScanJob) error {
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}

	sql := `UPSERT $rid SET
		job_id = $job_id, name = $name, document_type = $document_type,
		status = $status, config = $config, schedule = $schedule,
		checkpoint = $checkpoint, statistics = $statistics, customers = $customers,
		last_error = $last_error, created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("scan_job", job.ID),
		"job_id":        job.ID,
		"name":          job.Name,
		"document_type": job.DocumentType,
		"status":        job.Status,
		"config":        job.Config,
		"schedule":      job.Schedule,
		"checkpoint":    job.Checkpoint,
		"statistics":    job.Statistics,
		"customers":     job.Customers,
		"last_error":    job.LastError,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save scan job: %w", err)
	}
	return nil
}

func (s *ScanJobStore) Get(ctx context.Context, id string) (*models.ScanJob, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("scan_job", id)}

	results, err := surrealdb.Query[[]models.ScanJob](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

func (s *ScanJobStore) List(ctx context.Context) ([]*models.ScanJob, error) {
	sql := "SELECT " + jobSelectFields + " FROM scan_job ORDER BY created_at ASC"

	results, err := surrealdb.Query[[]models.ScanJob](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan jobs: %w", err)
	}

	var jobs []*models.ScanJob
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

func (s *ScanJobStore) Delete(ctx context.Context, id string) error {
	sql := "DELETE $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("scan_job", id)}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete scan job: %w", err)
	}
	return nil
}

func (s *ScanJobStore) UpdateStatus(ctx context.Context, id, status string) error {
	return s.setFields(ctx, id, "status = $status", map[string]any{"status": status})
}

func (s *ScanJobStore) GetStatus(ctx context.Context, id string) (string, error) {
	sql := "SELECT status FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("scan_job", id)}

	type statusResult struct {
		Status string `json:"status"`
	}

	results, err := surrealdb.Query[[]statusResult](ctx, s.db, sql, vars)
	if err != nil {
		return "", fmt.Errorf("failed to get scan job status: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("scan job %s not found", id)
	}
	return (*results)[0].Result[0].Status, nil
}

func (s *ScanJobStore) UpdateCheckpoint(ctx context.Context, id string, cp *models.Checkpoint) error {
	return s.setFields(ctx, id, "checkpoint = $checkpoint", map[string]any{"checkpoint": cp})
}

func (s *ScanJobStore) ClearCheckpoint(ctx context.Context, id string) error {
	return s.setFields(ctx, id, "checkpoint = $checkpoint", map[string]any{"checkpoint": models.Checkpoint{}})
}

func (s *ScanJobStore) UpdateStatistics(ctx context.Context, id string, stats *models.JobStatistics) error {
	return s.setFields(ctx, id, "statistics = $statistics", map[string]any{"statistics": stats})
}

func (s *ScanJobStore) SetLastRunDate(ctx context.Context, id, date string) error {
	return s.setFields(ctx, id, "schedule.last_run_date = $date", map[string]any{"date": date})
}

func (s *ScanJobStore) SetTargetDate(ctx context.Context, id, date string) error {
	return s.setFields(ctx, id, "schedule.target_date = $date", map[string]any{"date": date})
}

func (s *ScanJobStore) SetLastError(ctx context.Context, id, msg string) error {
	return s.setFields(ctx, id, "last_error = $msg", map[string]any{"msg": msg})
}

// setFields runs a partial UPDATE on one job record, bumping updated_at.
func (s *ScanJobStore) setFields(ctx context.Context, id, assignments string, vars map[string]any) error {
	sql := "UPDATE $rid SET " + assignments + ", updated_at = $updated_at"
	vars["rid"] = surrealmodels.NewRecordID("scan_job", id)
	vars["updated_at"] = time.Now().UTC()

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update scan job %s: %w", id, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.ScanJobStore = (*ScanJobStore)(nil)
