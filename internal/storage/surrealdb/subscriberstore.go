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

const subscriberSelectFields = "subscriber_id AS id, email, name, subscribed_types, filters, active, last_email_ts, email_count"

// SubscriberStore implements interfaces.SubscriberStore using SurrealDB.
type SubscriberStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSubscriberStore creates a new SubscriberStore.
func NewSubscriberStore(db *surrealdb.DB, logger *common.Logger) *SubscriberStore {
	return &SubscriberStore{db: db, logger: logger}
}

func (s *SubscriberStore) Save(ctx context.Context, sub *models.Subscriber) error {
	sql := `UPSERT $rid SET
		subscriber_id = $subscriber_id, email = $email, name = $name,
		subscribed_types = $subscribed_types, filters = $filters,
		active = $active, last_email_ts = $last_email_ts, email_count = $email_count`
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID("subscriber", sub.ID),
		"subscriber_id":    sub.ID,
		"email":            sub.Email,
		"name":             sub.Name,
		"subscribed_types": sub.SubscribedTypes,
		"filters":          sub.Filters,
		"active":           sub.Active,
		"last_email_ts":    sub.LastEmailAt,
		"email_count":      sub.EmailCount,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	return nil
}

func (s *SubscriberStore) Get(ctx context.Context, id string) (*models.Subscriber, error) {
	sql := "SELECT " + subscriberSelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("subscriber", id)}

	results, err := surrealdb.Query[[]models.Subscriber](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	sub := (*results)[0].Result[0]
	return &sub, nil
}

func (s *SubscriberStore) Delete(ctx context.Context, id string) error {
	sql := "DELETE $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("subscriber", id)}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	return nil
}

func (s *SubscriberStore) ListActive(ctx context.Context) ([]*models.Subscriber, error) {
	sql := "SELECT " + subscriberSelectFields + " FROM subscriber WHERE active = true ORDER BY email ASC"
	return s.querySubscribers(ctx, sql, nil)
}

func (s *SubscriberStore) ListByIDs(ctx context.Context, ids []string) ([]*models.Subscriber, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql := "SELECT " + subscriberSelectFields + " FROM subscriber WHERE subscriber_id IN $ids AND active = true"
	return s.querySubscribers(ctx, sql, map[string]any{"ids": ids})
}

func (s *SubscriberStore) RecordEmail(ctx context.Context, id string, at time.Time) error {
	sql := "UPDATE $rid SET last_email_ts = $at, email_count = email_count + 1"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("subscriber", id),
		"at":  at,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to record subscriber email: %w", err)
	}
	return nil
}

func (s *SubscriberStore) querySubscribers(ctx context.Context, sql string, vars map[string]any) ([]*models.Subscriber, error) {
	results, err := surrealdb.Query[[]models.Subscriber](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}

	var subs []*models.Subscriber
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			subs = append(subs, &(*results)[0].Result[i])
		}
	}
	return subs, nil
}

// Compile-time check
var _ interfaces.SubscriberStore = (*SubscriberStore)(nil)
