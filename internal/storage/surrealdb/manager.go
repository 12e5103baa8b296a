// Package surrealdb implements the storage interfaces over SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	scanJobStore    *ScanJobStore
	queueStore      *QueueStore
	subscriberStore *SubscriberStore
	matchStore      *MatchStore
	runItemStore    *RunItemStore
	deliveryStore   *DeliveryStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// Define tables to ensure they exist (SurrealDB v3 errors on querying non-existent tables)
	tables := []string{"scan_job", "scan_queue", "subscriber", "match_record", "run_item", "delivery"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}

	m.scanJobStore = NewScanJobStore(db, logger)
	m.queueStore = NewQueueStore(db, logger)
	m.subscriberStore = NewSubscriberStore(db, logger)
	m.matchStore = NewMatchStore(db, logger)
	m.runItemStore = NewRunItemStore(db, logger)
	m.deliveryStore = NewDeliveryStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) ScanJobStore() interfaces.ScanJobStore {
	return m.scanJobStore
}

func (m *Manager) QueueStore() interfaces.QueueStore {
	return m.queueStore
}

func (m *Manager) SubscriberStore() interfaces.SubscriberStore {
	return m.subscriberStore
}

func (m *Manager) MatchStore() interfaces.MatchStore {
	return m.matchStore
}

func (m *Manager) RunItemStore() interfaces.RunItemStore {
	return m.runItemStore
}

func (m *Manager) DeliveryStore() interfaces.DeliveryStore {
	return m.deliveryStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
