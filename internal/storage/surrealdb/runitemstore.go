package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

const runItemSelectFields = "item_id AS id, job_id, object_key, project_id, file_name, stage, matched, reason, processed_at"

// RunItemStore implements interfaces.RunItemStore using SurrealDB.
type RunItemStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRunItemStore creates a new RunItemStore.
func NewRunItemStore(db *surrealdb.DB, logger *common.Logger) *RunItemStore {
	return &RunItemStore{db: db, logger: logger}
}

func (s *RunItemStore) Save(ctx context.Context, item *models.DailyRunItem) error {
	sql := `UPSERT $rid SET
		item_id = $item_id, job_id = $job_id, object_key = $object_key,
		project_id = $project_id, file_name = $file_name, stage = $stage,
		matched = $matched, reason = $reason, processed_at = $processed_at`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("run_item", item.ID),
		"item_id":      item.ID,
		"job_id":       item.JobID,
		"object_key":   item.ObjectKey,
		"project_id":   item.ProjectID,
		"file_name":    item.FileName,
		"stage":        item.Stage,
		"matched":      item.Matched,
		"reason":       item.Reason,
		"processed_at": item.ProcessedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save run item: %w", err)
	}
	return nil
}

func (s *RunItemStore) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.DailyRunItem, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + runItemSelectFields + " FROM run_item WHERE job_id = $job_id ORDER BY processed_at DESC LIMIT $limit"
	vars := map[string]any{"job_id": jobID, "limit": limit}

	results, err := surrealdb.Query[[]models.DailyRunItem](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list run items: %w", err)
	}

	var items []*models.DailyRunItem
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			items = append(items, &(*results)[0].Result[i])
		}
	}
	return items, nil
}

func (s *RunItemStore) PurgeByJob(ctx context.Context, jobID string) (int, error) {
	sql := "DELETE FROM run_item WHERE job_id = $job_id"
	vars := map[string]any{"job_id": jobID}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge run items: %w", err)
	}
	return 0, nil
}

// Compile-time check
var _ interfaces.RunItemStore = (*RunItemStore)(nil)
