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

const deliverySelectFields = "delivery_id AS id, job_id, recipient, kind, match_count, succeeded, error, sent_at"

// DeliveryStore implements interfaces.DeliveryStore using SurrealDB.
type DeliveryStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewDeliveryStore creates a new DeliveryStore.
func NewDeliveryStore(db *surrealdb.DB, logger *common.Logger) *DeliveryStore {
	return &DeliveryStore{db: db, logger: logger}
}

func (s *DeliveryStore) Save(ctx context.Context, d *models.DeliveryRecord) error {
	sql := `UPSERT $rid SET
		delivery_id = $delivery_id, job_id = $job_id, recipient = $recipient,
		kind = $kind, match_count = $match_count, succeeded = $succeeded,
		error = $error, sent_at = $sent_at`
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("delivery", d.ID),
		"delivery_id": d.ID,
		"job_id":      d.JobID,
		"recipient":   d.Recipient,
		"kind":        d.Kind,
		"match_count": d.MatchCount,
		"succeeded":   d.Succeeded,
		"error":       d.Error,
		"sent_at":     d.SentAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save delivery record: %w", err)
	}
	return nil
}

func (s *DeliveryStore) ListByJob(ctx context.Context, jobID string) ([]*models.DeliveryRecord, error) {
	sql := "SELECT " + deliverySelectFields + " FROM delivery WHERE job_id = $job_id ORDER BY sent_at DESC"
	vars := map[string]any{"job_id": jobID}

	results, err := surrealdb.Query[[]models.DeliveryRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}

	var records []*models.DeliveryRecord
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			records = append(records, &(*results)[0].Result[i])
		}
	}
	return records, nil
}

// Compile-time check
var _ interfaces.DeliveryStore = (*DeliveryStore)(nil)
