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

// entrySelectFields lists the fields to select from scan_queue, aliasing
// entry_key to key for struct mapping.
const entrySelectFields = "entry_key AS key, job_id, target_date, force, status, attempts, max_attempts, backoff_until, created_at, started_at, completed_at, error"

// QueueStore implements interfaces.QueueStore using SurrealDB.
//
// The record id IS the single-flight key ("scan:<job_id>"), so admission and
// settlement address exactly one record per job.
type QueueStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewQueueStore creates a new QueueStore.
func NewQueueStore(db *surrealdb.DB, logger *common.Logger) *QueueStore {
	return &QueueStore{db: db, logger: logger}
}

// Admit inserts a waiting entry unless a non-terminal entry already holds
// the key. Admission sources are the scheduler loop and operator calls, both
// low-frequency; the select-then-upsert window is acceptable because a lost
// race re-admits the same job, which the deterministic key dedupes.
func (s *QueueStore) Admit(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, bool, error) {
	existing, err := s.Get(ctx, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !existing.IsTerminal() {
		return existing, false, nil
	}

	if entry.Status == "" {
		entry.Status = models.QueueStatusWaiting
	}
	if entry.MaxAttempts == 0 {
		entry.MaxAttempts = 3
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	sql := `UPSERT $rid SET
		entry_key = $entry_key, job_id = $job_id, target_date = $target_date,
		force = $force, status = $status, attempts = $attempts,
		max_attempts = $max_attempts, backoff_until = $backoff_until,
		created_at = $created_at, started_at = $started_at,
		completed_at = $completed_at, error = $error`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("scan_queue", entry.Key),
		"entry_key":     entry.Key,
		"job_id":        entry.JobID,
		"target_date":   entry.TargetDate,
		"force":         entry.Force,
		"status":        entry.Status,
		"attempts":      0,
		"max_attempts":  entry.MaxAttempts,
		"backoff_until": time.Time{},
		"created_at":    entry.CreatedAt,
		"started_at":    time.Time{},
		"completed_at":  time.Time{},
		"error":         "",
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return nil, false, fmt.Errorf("failed to admit queue entry: %w", err)
	}
	return entry, true, nil
}

// Lease claims the oldest eligible waiting entry. Two-step: SELECT the
// candidate, then a conditional UPDATE that only succeeds while it is still
// waiting, so concurrent processors cannot double-claim.
func (s *QueueStore) Lease(ctx context.Context) (*models.QueueEntry, error) {
	now := time.Now().UTC()

	selectSQL := "SELECT " + entrySelectFields + " FROM scan_queue WHERE status = $waiting AND backoff_until <= $now ORDER BY created_at ASC LIMIT 1"
	vars := map[string]any{
		"waiting": models.QueueStatusWaiting,
		"now":     now,
	}

	candidates, err := surrealdb.Query[[]models.QueueEntry](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate entry: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}

	candidate := (*candidates)[0].Result[0]

	updateSQL := "UPDATE $rid SET status = $active, started_at = $now, attempts = attempts + 1 WHERE status = $waiting RETURN AFTER"
	updateVars := map[string]any{
		"rid":     surrealmodels.NewRecordID("scan_queue", candidate.Key),
		"active":  models.QueueStatusActive,
		"waiting": models.QueueStatusWaiting,
		"now":     now,
	}

	type claimedRow struct {
		Status   string `json:"status"`
		Attempts int    `json:"attempts"`
	}
	claimed, err := surrealdb.Query[[]claimedRow](ctx, s.db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	if claimed == nil || len(*claimed) == 0 || len((*claimed)[0].Result) == 0 {
		// A concurrent processor claimed the candidate between the select and
		// the conditional update. Not an error; the caller polls again.
		return nil, nil
	}

	candidate.Status = models.QueueStatusActive
	candidate.StartedAt = now
	candidate.Attempts = (*claimed)[0].Result[0].Attempts
	return &candidate, nil
}

func (s *QueueStore) Complete(ctx context.Context, key string) error {
	sql := "UPDATE $rid SET status = $completed, completed_at = $now"
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID("scan_queue", key),
		"completed": models.QueueStatusCompleted,
		"now":       time.Now().UTC(),
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to complete queue entry: %w", err)
	}
	return nil
}

func (s *QueueStore) Fail(ctx context.Context, key string, entryErr error, backoffUntil time.Time, terminal bool) error {
	status := models.QueueStatusWaiting
	if terminal {
		status = models.QueueStatusFailed
	}

	errStr := ""
	if entryErr != nil {
		errStr = entryErr.Error()
	}

	sql := "UPDATE $rid SET status = $status, error = $error, backoff_until = $backoff, completed_at = $completed"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("scan_queue", key),
		"status":  status,
		"error":   errStr,
		"backoff": backoffUntil,
	}
	if terminal {
		vars["completed"] = time.Now().UTC()
	} else {
		vars["completed"] = time.Time{}
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to fail queue entry: %w", err)
	}
	return nil
}

func (s *QueueStore) Get(ctx context.Context, key string) (*models.QueueEntry, error) {
	sql := "SELECT " + entrySelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("scan_queue", key)}

	results, err := surrealdb.Query[[]models.QueueEntry](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	entry := (*results)[0].Result[0]
	return &entry, nil
}

func (s *QueueStore) CountWaiting(ctx context.Context) (int, error) {
	sql := "SELECT count() AS cnt FROM scan_queue WHERE status = $waiting GROUP ALL"
	vars := map[string]any{"waiting": models.QueueStatusWaiting}

	type countResult struct {
		Cnt int `json:"cnt"`
	}

	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

// ResetActive returns orphaned active entries to waiting. Called on startup
// to recover entries that were in-flight when the process crashed.
func (s *QueueStore) ResetActive(ctx context.Context) (int, error) {
	sql := "UPDATE scan_queue SET status = $waiting, started_at = NONE WHERE status = $active"
	vars := map[string]any{
		"waiting": models.QueueStatusWaiting,
		"active":  models.QueueStatusActive,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to reset active entries: %w", err)
	}
	// SurrealDB UPDATE doesn't easily return affected count; return 0
	return 0, nil
}

func (s *QueueStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	sql := "DELETE FROM scan_queue WHERE status IN [$completed, $failed] AND completed_at < $cutoff"
	vars := map[string]any{
		"completed": models.QueueStatusCompleted,
		"failed":    models.QueueStatusFailed,
		"cutoff":    olderThan,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge terminal entries: %w", err)
	}
	return 0, nil
}

// Compile-time check
var _ interfaces.QueueStore = (*QueueStore)(nil)
