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

const matchSelectFields = "match_id AS id, job_id, object_key, project_id, file_name, fi_type, validation_quote, confidence, extracted_at"

// MatchStore implements interfaces.MatchStore using SurrealDB.
type MatchStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(db *surrealdb.DB, logger *common.Logger) *MatchStore {
	return &MatchStore{db: db, logger: logger}
}

func (s *MatchStore) Save(ctx context.Context, m *models.MatchRecord) error {
	sql := `UPSERT $rid SET
		match_id = $match_id, job_id = $job_id, object_key = $object_key,
		project_id = $project_id, file_name = $file_name, fi_type = $fi_type,
		validation_quote = $validation_quote, confidence = $confidence,
		extracted_at = $extracted_at`
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID("match_record", m.ID),
		"match_id":         m.ID,
		"job_id":           m.JobID,
		"object_key":       m.ObjectKey,
		"project_id":       m.ProjectID,
		"file_name":        m.FileName,
		"fi_type":          m.FIType,
		"validation_quote": m.ValidationQuote,
		"confidence":       m.Confidence,
		"extracted_at":     m.ExtractedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save match record: %w", err)
	}
	return nil
}

func (s *MatchStore) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.MatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + matchSelectFields + " FROM match_record WHERE job_id = $job_id ORDER BY extracted_at DESC LIMIT $limit"
	vars := map[string]any{"job_id": jobID, "limit": limit}

	results, err := surrealdb.Query[[]models.MatchRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list match records: %w", err)
	}

	var records []*models.MatchRecord
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			records = append(records, &(*results)[0].Result[i])
		}
	}
	return records, nil
}

// Compile-time check
var _ interfaces.MatchStore = (*MatchStore)(nil)
