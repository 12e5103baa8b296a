// Package scanner drives one leased scan run end to end: window resolution,
// streaming enumeration, per-document classification, checkpointing, batched
// notification dispatch, and the memory governor.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planhound/planhound/internal/clients/objectstore"
	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// Run-control sentinels. Both mean the run stopped deliberately: the queue
// entry completes without retry and no summary mail is sent.
var (
	// ErrRunCancelled is returned when the job was flipped to CANCELLING
	// mid-run; the checkpoint is cleared before returning.
	ErrRunCancelled = errors.New("scan run cancelled")

	// ErrRunPaused is returned when the memory governor paused the run; the
	// checkpoint is persisted with is_resuming set before returning.
	ErrRunPaused = errors.New("scan run paused")
)

// earlyFlushDocs is the window at the start of a run where the checkpoint is
// flushed on every document. Early failures are the common ones; once a run
// survives this long the flush interval takes over.
const earlyFlushDocs = 100

// Service implements the Scanner interface.
type Service struct {
	objects    interfaces.ObjectStoreClient
	extractor  interfaces.Extractor
	classifier interfaces.ClassifierPipeline
	matcher    interfaces.SubscriberMatcher
	dispatcher interfaces.NotificationDispatcher
	jobs       interfaces.ScanJobStore
	matches    interfaces.MatchStore
	runItems   interfaces.RunItemStore

	cfg       *common.ScanConfig
	adminAddr string
	logger    *common.Logger

	// Test seams for the memory governor.
	rssMB    func() int
	coolDown func()
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMemoryProbe overrides the RSS probe and cool-down (tests).
func WithMemoryProbe(rssMB func() int, coolDown func()) ServiceOption {
	return func(s *Service) {
		s.rssMB = rssMB
		s.coolDown = coolDown
	}
}

// NewService creates a new scanner.
func NewService(
	objects interfaces.ObjectStoreClient,
	extractor interfaces.Extractor,
	classifier interfaces.ClassifierPipeline,
	subMatcher interfaces.SubscriberMatcher,
	dispatcher interfaces.NotificationDispatcher,
	jobs interfaces.ScanJobStore,
	matchStore interfaces.MatchStore,
	runItems interfaces.RunItemStore,
	cfg *common.ScanConfig,
	adminAddr string,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		objects:    objects,
		extractor:  extractor,
		classifier: classifier,
		matcher:    subMatcher,
		dispatcher: dispatcher,
		jobs:       jobs,
		matches:    matchStore,
		runItems:   runItems,
		cfg:        cfg,
		adminAddr:  adminAddr,
		logger:     common.NewSilentLogger(),
		rssMB:      common.ProcessRSSMB,
		coolDown:   common.CoolDown,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// runState is the in-memory state of one run: the working checkpoint plus
// the unflushed match accumulator.
type runState struct {
	cp        models.Checkpoint
	pending   []models.MatchRecord
	emails    int
	failures  []string
	startedAt time.Time
	manual    bool
}

// Run executes one scan for a leased queue entry.
func (s *Service) Run(ctx context.Context, job *models.ScanJob, entry *models.QueueEntry) error {
	state, err := s.prepare(ctx, job, entry)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("document_type", job.DocumentType).
		Time("window_start", state.cp.ScanStart).
		Time("window_end", state.cp.ScanEnd).
		Int("total_documents", state.cp.TotalDocuments).
		Bool("resuming", state.cp.IsResuming).
		Msg("Scan run starting")

	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	runErr := s.scanLoop(ctx, job, state)

	switch {
	case errors.Is(runErr, ErrRunCancelled):
		// Cancel exits clean: cursor cleared, no summary mail.
		return runErr

	case errors.Is(runErr, ErrRunPaused):
		return runErr

	case runErr != nil:
		// Infrastructure failure: keep the checkpoint so the retry resumes.
		state.cp.IsResuming = true
		if cpErr := s.jobs.UpdateCheckpoint(ctx, job.ID, &state.cp); cpErr != nil {
			s.logger.Error().Str("job_id", job.ID).Err(cpErr).Msg("Failed to persist checkpoint after run error")
		}
		return runErr
	}

	return s.finish(ctx, job, state)
}

// prepare resolves the run window and totals, resuming from the persisted
// checkpoint when one exists.
func (s *Service) prepare(ctx context.Context, job *models.ScanJob, entry *models.QueueEntry) (*runState, error) {
	state := &runState{
		startedAt: time.Now().UTC(),
		manual:    entry.TargetDate != "" || entry.Force,
	}

	if !job.Checkpoint.IsZero() {
		// Resume: the frozen window and total are authoritative.
		state.cp = job.Checkpoint
		state.cp.IsResuming = true
		return state, nil
	}

	window, err := resolveWindow(job, entry, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	total, err := s.objects.CountDocuments(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	state.cp = models.Checkpoint{
		ScanStart:      window.Start,
		ScanEnd:        window.End,
		TotalDocuments: total,
	}
	if state.manual {
		state.cp.TriggeredBy = "manual"
	} else {
		state.cp.TriggeredBy = "scheduler"
	}

	return state, nil
}

// resolveWindow computes the modification-time window for a fresh run.
//
// A manual target date scans that whole UTC day. Scheduled runs scan
// [now - lookback days, end of yesterday] UTC; the half-open end at today
// 00:00 UTC excludes documents still landing today.
func resolveWindow(job *models.ScanJob, entry *models.QueueEntry, now time.Time) (interfaces.TimeWindow, error) {
	targetDate := entry.TargetDate
	if targetDate == "" {
		targetDate = job.Schedule.TargetDate
	}

	if targetDate != "" {
		day, err := time.ParseInLocation("2006-01-02", targetDate, time.UTC)
		if err != nil {
			return interfaces.TimeWindow{}, fmt.Errorf("invalid target date %q: %w", targetDate, err)
		}
		return interfaces.TimeWindow{Start: day, End: day.AddDate(0, 0, 1)}, nil
	}

	end := now.Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -job.Schedule.GetLookbackDays())
	return interfaces.TimeWindow{Start: start, End: end}, nil
}

// scanLoop walks the listing and processes every eligible document.
func (s *Service) scanLoop(ctx context.Context, job *models.ScanJob, state *runState) error {
	window := interfaces.TimeWindow{Start: state.cp.ScanStart, End: state.cp.ScanEnd}

	token := state.cp.ContinuationToken
	startAfter := ""
	if token == "" {
		// No server cursor survived; fall back to skipping every key up to
		// and including the last processed one.
		startAfter = state.cp.LastProcessedKey
	}

	for {
		page, err := s.objects.ListPage(ctx, interfaces.ListPageRequest{
			Window:            window,
			ContinuationToken: token,
			StartAfterKey:     startAfter,
		})
		if err != nil {
			return fmt.Errorf("listing failed: %w", err)
		}
		startAfter = ""

		for _, obj := range page.Entries {
			if err := s.checkRunControl(ctx, job, state); err != nil {
				return err
			}

			s.processDocument(ctx, job, state, obj)

			state.cp.ProcessedCount++
			state.cp.LastProcessedIndex++
			state.cp.LastProcessedKey = obj.Key
			state.cp.LastProcessedFile = obj.FileName
			state.cp.ContinuationToken = "" // Valid only at page boundaries

			if err := s.maybeFlush(ctx, job, state, false); err != nil {
				return err
			}
		}

		if page.Done {
			return nil
		}
		token = page.NextToken
		state.cp.ContinuationToken = token
	}
}

// checkRunControl runs the per-document cooperative-cancel and memory
// checks. The status is re-read from storage so an operator cancel takes
// effect at the next document boundary.
func (s *Service) checkRunControl(ctx context.Context, job *models.ScanJob, state *runState) error {
	status, err := s.jobs.GetStatus(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read job status: %w", err)
	}
	if status == models.JobStatusCancelling {
		s.logger.Info().Str("job_id", job.ID).Int("processed", state.cp.ProcessedCount).Msg("Cancel requested, stopping run")
		if err := s.jobs.ClearCheckpoint(ctx, job.ID); err != nil {
			s.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to clear checkpoint on cancel")
		}
		// The job stays schedulable: cancel abandons the run, not the job.
		if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusActive); err != nil {
			s.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to restore job after cancel")
		}
		return ErrRunCancelled
	}

	rss := s.rssMB()
	if rss >= s.cfg.GetPauseRSSMB() {
		s.logger.Warn().Str("job_id", job.ID).Int("rss_mb", rss).Msg("Memory pause threshold reached, pausing run")
		state.cp.IsResuming = true
		if err := s.jobs.UpdateCheckpoint(ctx, job.ID, &state.cp); err != nil {
			return fmt.Errorf("failed to persist checkpoint on pause: %w", err)
		}
		if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPaused); err != nil {
			return fmt.Errorf("failed to mark job paused: %w", err)
		}
		return ErrRunPaused
	}
	if rss >= s.cfg.GetWarnRSSMB() {
		s.logger.Warn().Str("job_id", job.ID).Int("rss_mb", rss).Msg("Memory warn threshold reached, cooling down")
		s.coolDown()
	}

	return nil
}

// processDocument fetches, extracts, and classifies one document under the
// per-document budget. Every outcome is a skip or a match; per-document
// failures never abort the run.
func (s *Service) processDocument(ctx context.Context, job *models.ScanJob, state *runState, obj models.ObjectInfo) {
	docCtx, cancel := context.WithTimeout(ctx, s.cfg.GetDocTimeout())
	defer cancel()

	cls := s.classifyObject(docCtx, job, obj)

	if docCtx.Err() == context.DeadlineExceeded {
		cls = &models.Classification{Stage: models.StageTimeout, Reason: "per-document budget exhausted"}
	}

	s.audit(ctx, job, obj, cls)

	if !cls.Match {
		s.logger.Debug().Str("key", obj.Key).Str("stage", cls.Stage).Str("reason", cls.Reason).Msg("Document rejected")
		return
	}

	record := models.MatchRecord{
		ID:              uuid.NewString(),
		JobID:           job.ID,
		ObjectKey:       obj.Key,
		ProjectID:       obj.ProjectID,
		FileName:        obj.FileName,
		FIType:          cls.FIType,
		ValidationQuote: cls.ValidationQuote,
		Confidence:      cls.Confidence,
		ExtractedAt:     time.Now().UTC(),
	}

	if err := s.matches.Save(ctx, &record); err != nil {
		s.logger.Error().Str("key", obj.Key).Err(err).Msg("Failed to persist match record")
	}

	state.pending = append(state.pending, record)
	state.cp.MatchesFound++
	state.cp.AllMatchDetails = append(state.cp.AllMatchDetails, models.MatchDetail{
		FileName:        obj.FileName,
		ProjectID:       obj.ProjectID,
		FIType:          cls.FIType,
		ValidationQuote: cls.ValidationQuote,
		Confidence:      cls.Confidence,
		Timestamp:       time.Now().UTC(),
	})

	s.logger.Info().
		Str("key", obj.Key).
		Str("fi_type", cls.FIType).
		Float64("confidence", cls.Confidence).
		Msg("Match confirmed")
}

// classifyObject runs fetch, extract, classify for one object and maps every
// failure to a stage-tagged rejection.
func (s *Service) classifyObject(ctx context.Context, job *models.ScanJob, obj models.ObjectInfo) *models.Classification {
	doc, cleanup, err := s.objects.Fetch(ctx, obj.Key)
	if err != nil {
		cleanup()
		if errors.Is(err, objectstore.ErrOversizeObject) {
			return &models.Classification{Stage: models.StageOversize, Reason: err.Error()}
		}
		return &models.Classification{Stage: models.StageSkipped, Reason: fmt.Sprintf("fetch failed: %v", err)}
	}
	defer cleanup()

	extracted := s.extractor.Extract(ctx, doc)
	if !extracted.OK {
		return &models.Classification{Stage: models.StageExtractFailed, Reason: extracted.Reason}
	}

	cls, err := s.classifier.Classify(ctx, obj.FileName, extracted.Text, obj.ProjectID, job.DocumentType)
	if err != nil {
		return &models.Classification{Stage: models.StageSkipped, Reason: fmt.Sprintf("classification failed: %v", err)}
	}
	return cls
}

// audit persists the per-document run item when auditing is enabled.
func (s *Service) audit(ctx context.Context, job *models.ScanJob, obj models.ObjectInfo, cls *models.Classification) {
	if !s.cfg.AuditRunItems || s.runItems == nil {
		return
	}

	item := &models.DailyRunItem{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		ObjectKey:   obj.Key,
		ProjectID:   obj.ProjectID,
		FileName:    obj.FileName,
		Stage:       cls.Stage,
		Matched:     cls.Match,
		Reason:      cls.Reason,
		ProcessedAt: time.Now().UTC(),
	}
	if err := s.runItems.Save(ctx, item); err != nil {
		s.logger.Warn().Str("key", obj.Key).Err(err).Msg("Failed to persist run item")
	}
}

// maybeFlush persists the checkpoint and dispatches pending notifications at
// flush boundaries. The first hundred documents flush the checkpoint every
// document; after that both the checkpoint and notifications flush at the
// configured interval. Pass force for the end-of-run flush.
func (s *Service) maybeFlush(ctx context.Context, job *models.ScanJob, state *runState, force bool) error {
	every := s.cfg.GetCheckpointEvery()
	atInterval := state.cp.ProcessedCount%every == 0
	early := state.cp.ProcessedCount <= earlyFlushDocs

	if !force && !atInterval && !early {
		return nil
	}

	if err := s.jobs.UpdateCheckpoint(ctx, job.ID, &state.cp); err != nil {
		return fmt.Errorf("checkpoint flush failed: %w", err)
	}

	if !force && !atInterval {
		return nil
	}
	return s.dispatchPending(ctx, job, state)
}

// dispatchPending sends one batch email per subscriber covering everything
// accumulated since the last flush, then clears the accumulator. Dispatch
// failures are recorded but never abort the run.
func (s *Service) dispatchPending(ctx context.Context, job *models.ScanJob, state *runState) error {
	if len(state.pending) > 0 {
		batches, err := s.matcher.BuildBatches(ctx, job, state.pending)
		if err != nil {
			s.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to build subscriber batches")
			state.failures = append(state.failures, fmt.Sprintf("batch build: %v", err))
		} else {
			for _, batch := range batches {
				if err := s.dispatcher.SendMatchBatch(ctx, job.ID, batch); err != nil {
					s.logger.Error().Str("job_id", job.ID).Str("subscriber", batch.Subscriber.Email).Err(err).Msg("Match batch dispatch failed")
					state.failures = append(state.failures, fmt.Sprintf("mail to %s: %v", batch.Subscriber.Email, err))
					continue
				}
				state.emails++
			}
		}
		state.pending = state.pending[:0]
	}

	if state.manual && s.adminAddr != "" && state.cp.ProcessedCount < state.cp.TotalDocuments {
		report := interfaces.ProgressReport{
			JobID:         job.ID,
			JobName:       job.Name,
			Processed:     state.cp.ProcessedCount,
			Total:         state.cp.TotalDocuments,
			MatchesFound:  state.cp.MatchesFound,
			RecentMatches: lastN(state.cp.AllMatchDetails, 5),
		}
		if err := s.dispatcher.SendProgress(ctx, s.adminAddr, report); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Progress mail failed")
		}
	}

	return nil
}

// finish completes a clean run: final dispatch, summary mail, statistics,
// cursor cleared, status back to ACTIVE.
func (s *Service) finish(ctx context.Context, job *models.ScanJob, state *runState) error {
	if err := s.maybeFlush(ctx, job, state, true); err != nil {
		return err
	}

	finishedAt := time.Now().UTC()

	if s.adminAddr != "" {
		report := interfaces.SummaryReport{
			JobID:        job.ID,
			JobName:      job.Name,
			Processed:    state.cp.ProcessedCount,
			Total:        state.cp.TotalDocuments,
			MatchesFound: state.cp.MatchesFound,
			EmailsSent:   state.emails,
			Failures:     state.failures,
			Matches:      state.cp.AllMatchDetails,
			StartedAt:    state.startedAt,
			FinishedAt:   finishedAt,
		}
		if err := s.dispatcher.SendSummary(ctx, s.adminAddr, report); err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Summary mail failed")
		}
	}

	stats := job.Statistics
	stats.TotalRuns++
	stats.TotalDocuments += state.cp.ProcessedCount
	stats.TotalMatches += state.cp.MatchesFound
	stats.TotalEmails += state.emails
	stats.TotalErrors += len(state.failures)
	stats.LastRunStarted = state.startedAt
	stats.LastRunFinished = finishedAt
	stats.LastRunMatches = state.cp.MatchesFound
	if err := s.jobs.UpdateStatistics(ctx, job.ID, &stats); err != nil {
		s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to update statistics")
	}

	if err := s.jobs.SetLastRunDate(ctx, job.ID, finishedAt.Format("2006-01-02")); err != nil {
		s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to set last run date")
	}

	if err := s.jobs.ClearCheckpoint(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusActive); err != nil {
		return fmt.Errorf("failed to restore job status: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("processed", state.cp.ProcessedCount).
		Int("matches", state.cp.MatchesFound).
		Int("emails", state.emails).
		Msg("Scan run complete")

	return nil
}

func lastN(details []models.MatchDetail, n int) []models.MatchDetail {
	if len(details) <= n {
		return details
	}
	return details[len(details)-n:]
}

// Ensure Service implements Scanner
var _ interfaces.Scanner = (*Service)(nil)
