// Package jobmanager runs the scan queue: processor goroutines lease
// admitted entries and execute scan runs, the scheduler admits due jobs,
// and job control exposes the operator surface.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
	"github.com/planhound/planhound/internal/services/scanner"
)

const (
	// maxAttempts bounds retries per admission.
	maxAttempts = 3

	// retryBackoffBase seeds the exponential retry backoff.
	retryBackoffBase = 5 * time.Second

	// idlePollInterval is how long processors sleep on an empty queue.
	idlePollInterval = 1 * time.Second
)

// Manager runs the processor pool and the scheduler.
type Manager struct {
	scanner interfaces.Scanner
	storage interfaces.StorageManager
	logger  *common.Logger
	config  *common.ScanConfig

	scheduler *Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a new job manager.
func NewManager(
	scan interfaces.Scanner,
	storage interfaces.StorageManager,
	logger *common.Logger,
	config *common.ScanConfig,
) *Manager {
	m := &Manager{
		scanner: scan,
		storage: storage,
		logger:  logger,
		config:  config,
	}
	m.scheduler = NewScheduler(storage, logger)
	return m
}

// safeGo launches a goroutine with panic recovery and logging.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the processor pool and, when enabled, the scheduler.
// Safe to call multiple times — stops any existing loops before starting.
func (m *Manager) Start() {
	if m.cancel != nil {
		m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	// Return entries orphaned by a crashed worker to waiting. Resumption is
	// safe because runs are checkpointed.
	if count, err := m.storage.QueueStore().ResetActive(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to reset orphaned queue entries")
	} else if count > 0 {
		m.logger.Info().Int("count", count).Msg("Reset orphaned queue entries to waiting")
	}

	if m.config.SchedulerEnabled {
		m.safeGo("scheduler", func() { m.scheduler.Run(ctx) })
	}

	concurrency := m.config.GetWorkerConcurrency()
	for i := 0; i < concurrency; i++ {
		name := fmt.Sprintf("processor-%d", i)
		m.safeGo(name, func() { m.processLoop(ctx) })
	}

	m.logger.Info().
		Bool("scheduler", m.config.SchedulerEnabled).
		Int("concurrency", concurrency).
		Msg("Job manager started")
}

// Stop cancels all loops and waits for completion.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
	m.logger.Info().Msg("Job manager stopped")
}

// processLoop continuously leases and executes scan runs.
func (m *Manager) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := m.storage.QueueStore().Lease(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Processor: lease error")
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}
		if entry == nil {
			if !sleepCtx(ctx, idlePollInterval) {
				return
			}
			continue
		}

		m.execute(ctx, entry)
	}
}

// execute runs one leased entry end to end and settles the queue entry.
func (m *Manager) execute(ctx context.Context, entry *models.QueueEntry) {
	job, err := m.storage.ScanJobStore().Get(ctx, entry.JobID)
	if err != nil || job == nil {
		m.logger.Warn().Str("job_id", entry.JobID).Err(err).Msg("Leased entry references missing job")
		m.fail(ctx, entry, fmt.Errorf("job %s not found", entry.JobID), true)
		return
	}

	start := time.Now()
	runErr := m.scanner.Run(ctx, job, entry)
	durationMS := time.Since(start).Milliseconds()

	switch {
	case runErr == nil:
		m.logger.Info().Str("job_id", job.ID).Int64("duration_ms", durationMS).Msg("Scan run succeeded")
		m.complete(ctx, entry)

	case errors.Is(runErr, scanner.ErrRunCancelled), errors.Is(runErr, scanner.ErrRunPaused):
		// Deliberate stop: the entry completes, nothing to retry. A
		// governor-paused job is re-admitted by the next scheduler tick off
		// its resume marker.
		m.logger.Info().Str("job_id", job.ID).Err(runErr).Msg("Scan run stopped deliberately")
		m.complete(ctx, entry)

	default:
		terminal := entry.Attempts >= entry.MaxAttempts
		m.logger.Warn().
			Str("job_id", job.ID).
			Int("attempt", entry.Attempts).
			Int("max_attempts", entry.MaxAttempts).
			Bool("terminal", terminal).
			Int64("duration_ms", durationMS).
			Err(runErr).
			Msg("Scan run failed")

		m.fail(ctx, entry, runErr, terminal)

		if terminal {
			if err := m.storage.ScanJobStore().UpdateStatus(ctx, job.ID, models.JobStatusError); err != nil {
				m.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to mark job errored")
			}
			if err := m.storage.ScanJobStore().SetLastError(ctx, job.ID, runErr.Error()); err != nil {
				m.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record job error")
			}
		}
	}
}

func (m *Manager) complete(ctx context.Context, entry *models.QueueEntry) {
	if err := m.storage.QueueStore().Complete(ctx, entry.Key); err != nil {
		m.logger.Warn().Str("key", entry.Key).Err(err).Msg("Failed to complete queue entry")
	}
}

func (m *Manager) fail(ctx context.Context, entry *models.QueueEntry, runErr error, terminal bool) {
	backoffUntil := time.Now().UTC().Add(retryBackoff(entry.Attempts))
	if err := m.storage.QueueStore().Fail(ctx, entry.Key, runErr, backoffUntil, terminal); err != nil {
		m.logger.Warn().Str("key", entry.Key).Err(err).Msg("Failed to settle queue entry")
	}
}

// retryBackoff doubles from the base per attempt already made: 5s, 10s, 20s.
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return retryBackoffBase << (attempts - 1)
}

// sleepCtx sleeps unless the context ends first; returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
