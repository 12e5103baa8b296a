package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// --- fakes -----------------------------------------------------------------

type fakeObjects struct {
	entries    []models.ObjectInfo
	listSeen   []interfaces.ListPageRequest
	countCalls int
	countSeen  []interfaces.TimeWindow
}

func (f *fakeObjects) ListPage(ctx context.Context, req interfaces.ListPageRequest) (*interfaces.ListPageResult, error) {
	f.listSeen = append(f.listSeen, req)

	entries := f.entries
	// Honor the key-resume contract: skip keys <= StartAfterKey.
	if req.ContinuationToken == "" && req.StartAfterKey != "" {
		var kept []models.ObjectInfo
		for _, e := range entries {
			if e.Key > req.StartAfterKey {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	return &interfaces.ListPageResult{Entries: entries, Done: true}, nil
}

func (f *fakeObjects) CountDocuments(ctx context.Context, window interfaces.TimeWindow) (int, error) {
	f.countCalls++
	f.countSeen = append(f.countSeen, window)
	return len(f.entries), nil
}

func (f *fakeObjects) Head(ctx context.Context, key string) (int64, error) { return 0, nil }

func (f *fakeObjects) Fetch(ctx context.Context, key string) (*models.FetchedDocument, func(), error) {
	return &models.FetchedDocument{Key: key, Format: models.FormatPDF, Data: []byte("body")}, func() {}, nil
}

func (f *fakeObjects) ListProjectFolders(ctx context.Context) ([]string, error) { return nil, nil }

type fakeExtractor struct{}

func (f *fakeExtractor) Extract(ctx context.Context, doc *models.FetchedDocument) models.ExtractResult {
	return models.ExtractResult{Text: "extracted text", CharCount: 14, OK: true}
}

// fakeClassifier matches the keys listed in matchKeys; optionally blocks
// until the document context expires.
type fakeClassifier struct {
	matchKeys map[string]bool
	block     bool
}

func (f *fakeClassifier) Classify(ctx context.Context, fileName, text, projectID, targetType string) (*models.Classification, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	for key, matched := range f.matchKeys {
		if matched && fileName == key {
			return &models.Classification{
				Match:      true,
				Stage:      models.StageMatch,
				FIType:     targetType,
				Confidence: 0.9,
			}, nil
		}
	}
	return &models.Classification{Stage: models.StageNotFI}, nil
}

type fakeMatcher struct {
	sub *models.Subscriber
}

func (f *fakeMatcher) BuildBatches(ctx context.Context, job *models.ScanJob, matches []models.MatchRecord) ([]interfaces.SubscriberBatch, error) {
	if len(matches) == 0 || f.sub == nil {
		return nil, nil
	}
	enriched := make([]interfaces.EnrichedMatch, len(matches))
	for i, m := range matches {
		enriched[i] = interfaces.EnrichedMatch{Match: m}
	}
	return []interfaces.SubscriberBatch{{Subscriber: f.sub, Matches: enriched}}, nil
}

type fakeDispatcher struct {
	batches    []interfaces.SubscriberBatch
	progresses []interfaces.ProgressReport
	summaries  []interfaces.SummaryReport
}

func (f *fakeDispatcher) SendMatchBatch(ctx context.Context, jobID string, batch interfaces.SubscriberBatch) error {
	f.batches = append(f.batches, batch)
	return nil
}
func (f *fakeDispatcher) SendProgress(ctx context.Context, addr string, report interfaces.ProgressReport) error {
	f.progresses = append(f.progresses, report)
	return nil
}
func (f *fakeDispatcher) SendSummary(ctx context.Context, addr string, report interfaces.SummaryReport) error {
	f.summaries = append(f.summaries, report)
	return nil
}

// fakeJobStore keeps one job in memory. statusScript, when non-empty, feeds
// GetStatus one value per call before falling back to the live status.
type fakeJobStore struct {
	job          *models.ScanJob
	statusScript []string
	statusReads  int

	checkpointWrites []models.Checkpoint
	cleared          bool
	lastRunDate      string
	stats            *models.JobStatistics
}

func (f *fakeJobStore) Save(ctx context.Context, job *models.ScanJob) error { return nil }
func (f *fakeJobStore) Get(ctx context.Context, id string) (*models.ScanJob, error) {
	return f.job, nil
}
func (f *fakeJobStore) List(ctx context.Context) ([]*models.ScanJob, error) { return nil, nil }
func (f *fakeJobStore) Delete(ctx context.Context, id string) error         { return nil }
func (f *fakeJobStore) UpdateStatus(ctx context.Context, id, status string) error {
	f.job.Status = status
	return nil
}
func (f *fakeJobStore) GetStatus(ctx context.Context, id string) (string, error) {
	f.statusReads++
	if len(f.statusScript) > 0 {
		status := f.statusScript[0]
		f.statusScript = f.statusScript[1:]
		return status, nil
	}
	return f.job.Status, nil
}
func (f *fakeJobStore) UpdateCheckpoint(ctx context.Context, id string, cp *models.Checkpoint) error {
	f.checkpointWrites = append(f.checkpointWrites, *cp)
	f.job.Checkpoint = *cp
	return nil
}
func (f *fakeJobStore) ClearCheckpoint(ctx context.Context, id string) error {
	f.cleared = true
	f.job.Checkpoint = models.Checkpoint{}
	return nil
}
func (f *fakeJobStore) UpdateStatistics(ctx context.Context, id string, stats *models.JobStatistics) error {
	f.stats = stats
	return nil
}
func (f *fakeJobStore) SetLastRunDate(ctx context.Context, id, date string) error {
	f.lastRunDate = date
	return nil
}
func (f *fakeJobStore) SetTargetDate(ctx context.Context, id, date string) error { return nil }
func (f *fakeJobStore) SetLastError(ctx context.Context, id, msg string) error   { return nil }

type fakeMatchStore struct {
	saved []*models.MatchRecord
}

func (f *fakeMatchStore) Save(ctx context.Context, m *models.MatchRecord) error {
	f.saved = append(f.saved, m)
	return nil
}
func (f *fakeMatchStore) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.MatchRecord, error) {
	return f.saved, nil
}

type fakeRunItemStore struct {
	items []*models.DailyRunItem
}

func (f *fakeRunItemStore) Save(ctx context.Context, item *models.DailyRunItem) error {
	f.items = append(f.items, item)
	return nil
}
func (f *fakeRunItemStore) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.DailyRunItem, error) {
	return f.items, nil
}
func (f *fakeRunItemStore) PurgeByJob(ctx context.Context, jobID string) (int, error) {
	return 0, nil
}

// --- harness ---------------------------------------------------------------

type harness struct {
	objects    *fakeObjects
	classifier *fakeClassifier
	dispatcher *fakeDispatcher
	jobs       *fakeJobStore
	matchStore *fakeMatchStore
	runItems   *fakeRunItemStore
	cfg        *common.ScanConfig
	svc        *Service
}

func docs(keys ...string) []models.ObjectInfo {
	modified := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	out := make([]models.ObjectInfo, len(keys))
	for i, k := range keys {
		out[i] = models.ObjectInfo{
			Key:          "planning/PA-1/" + k,
			FileName:     k,
			ProjectID:    "PA-1",
			LastModified: modified,
		}
	}
	return out
}

func newHarness(t *testing.T, entries []models.ObjectInfo, opts ...ServiceOption) *harness {
	t.Helper()

	h := &harness{
		objects:    &fakeObjects{entries: entries},
		classifier: &fakeClassifier{},
		dispatcher: &fakeDispatcher{},
		matchStore: &fakeMatchStore{},
		runItems:   &fakeRunItemStore{},
		cfg: &common.ScanConfig{
			CheckpointEvery: 100,
			WarnRSSMB:       1500,
			PauseRSSMB:      1700,
			DocTimeout:      "25s",
			AuditRunItems:   true,
		},
	}
	h.jobs = &fakeJobStore{job: &models.ScanJob{
		ID:           "job-1",
		Name:         "Acoustic scan",
		DocumentType: models.DocTypeAcoustic,
		Status:       models.JobStatusActive,
		Schedule:     models.JobSchedule{Type: models.ScheduleDaily, LookbackDays: 2},
	}}

	matcher := &fakeMatcher{sub: &models.Subscriber{ID: "sub-1", Email: "sub@example.com"}}
	h.svc = NewService(
		h.objects, &fakeExtractor{}, h.classifier, matcher, h.dispatcher,
		h.jobs, h.matchStore, h.runItems, h.cfg, "ops@example.com",
		opts...,
	)
	return h
}

func entry() *models.QueueEntry {
	return &models.QueueEntry{Key: models.JobKey("job-1"), JobID: "job-1"}
}

// --- tests -----------------------------------------------------------------

func TestRun_CleanCompletion(t *testing.T) {
	h := newHarness(t, docs("a.pdf", "b.pdf", "c.pdf"))
	h.classifier.matchKeys = map[string]bool{"b.pdf": true}

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if h.jobs.job.Status != models.JobStatusActive {
		t.Errorf("job should return to ACTIVE, got %s", h.jobs.job.Status)
	}
	if !h.jobs.cleared {
		t.Error("checkpoint should be cleared on clean completion")
	}
	if h.jobs.lastRunDate == "" {
		t.Error("last run date should be recorded")
	}

	if len(h.matchStore.saved) != 1 || h.matchStore.saved[0].FileName != "b.pdf" {
		t.Fatalf("expected 1 match record for b.pdf, got %d", len(h.matchStore.saved))
	}

	if len(h.dispatcher.batches) != 1 {
		t.Fatalf("expected 1 match batch, got %d", len(h.dispatcher.batches))
	}
	if len(h.dispatcher.summaries) != 1 {
		t.Fatalf("expected 1 summary mail, got %d", len(h.dispatcher.summaries))
	}
	summary := h.dispatcher.summaries[0]
	if summary.Processed != 3 || summary.Total != 3 || summary.MatchesFound != 1 || summary.EmailsSent != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	if h.jobs.stats == nil || h.jobs.stats.TotalRuns != 1 || h.jobs.stats.TotalDocuments != 3 {
		t.Errorf("statistics not updated: %+v", h.jobs.stats)
	}

	// One audit item per processed document.
	if len(h.runItems.items) != 3 {
		t.Errorf("expected 3 run items, got %d", len(h.runItems.items))
	}
}

func TestRun_EarlyFlushPerDocument(t *testing.T) {
	h := newHarness(t, docs("a.pdf", "b.pdf", "c.pdf"))

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Three per-document flushes plus the forced final one.
	if len(h.jobs.checkpointWrites) != 4 {
		t.Fatalf("expected 4 checkpoint writes, got %d", len(h.jobs.checkpointWrites))
	}
	if h.jobs.checkpointWrites[0].ProcessedCount != 1 {
		t.Errorf("first flush should record one document, got %d", h.jobs.checkpointWrites[0].ProcessedCount)
	}
	if h.jobs.checkpointWrites[2].LastProcessedFile != "c.pdf" {
		t.Errorf("third flush should record c.pdf, got %s", h.jobs.checkpointWrites[2].LastProcessedFile)
	}
}

func TestRun_FreshRunFreezesWindowAndTotal(t *testing.T) {
	h := newHarness(t, docs("a.pdf"))

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if h.objects.countCalls != 1 {
		t.Fatalf("fresh run should count once, got %d", h.objects.countCalls)
	}
	cp := h.jobs.checkpointWrites[0]
	if cp.ScanStart.IsZero() || cp.ScanEnd.IsZero() {
		t.Error("checkpoint should carry the frozen window")
	}
	if cp.TotalDocuments != 1 {
		t.Errorf("checkpoint should carry the frozen total, got %d", cp.TotalDocuments)
	}
	if cp.TriggeredBy != "scheduler" {
		t.Errorf("non-manual run should record scheduler trigger, got %s", cp.TriggeredBy)
	}
}

func TestRun_ResumeFromCheckpoint(t *testing.T) {
	h := newHarness(t, docs("a.pdf", "b.pdf", "c.pdf"))

	frozen := interfaces.TimeWindow{
		Start: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
	}
	h.jobs.job.Checkpoint = models.Checkpoint{
		ProcessedCount:   1,
		LastProcessedKey: "planning/PA-1/a.pdf",
		ScanStart:        frozen.Start,
		ScanEnd:          frozen.End,
		TotalDocuments:   3,
	}

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Resume never re-counts or re-resolves the window.
	if h.objects.countCalls != 0 {
		t.Errorf("resume must not recount, got %d calls", h.objects.countCalls)
	}
	req := h.objects.listSeen[0]
	if req.StartAfterKey != "planning/PA-1/a.pdf" {
		t.Errorf("resume should skip past the last processed key, got %q", req.StartAfterKey)
	}
	if !req.Window.Start.Equal(frozen.Start) || !req.Window.End.Equal(frozen.End) {
		t.Errorf("resume must reuse the frozen window, got %+v", req.Window)
	}

	// Only b.pdf and c.pdf are processed; the cumulative count continues.
	summary := h.dispatcher.summaries[0]
	if summary.Processed != 3 {
		t.Errorf("expected cumulative processed 3, got %d", summary.Processed)
	}
}

func TestRun_ResumePrefersContinuationToken(t *testing.T) {
	h := newHarness(t, docs("a.pdf"))

	h.jobs.job.Checkpoint = models.Checkpoint{
		ProcessedCount:    1,
		LastProcessedKey:  "planning/PA-1/a.pdf",
		ContinuationToken: "tok-9",
		ScanStart:         time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		ScanEnd:           time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		TotalDocuments:    1,
	}

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	req := h.objects.listSeen[0]
	if req.ContinuationToken != "tok-9" {
		t.Errorf("expected token resume, got %q", req.ContinuationToken)
	}
	if req.StartAfterKey != "" {
		t.Error("token must take precedence over the resume key")
	}
}

func TestRun_CancelMidRun(t *testing.T) {
	h := newHarness(t, docs("a.pdf", "b.pdf", "c.pdf"))

	// First document proceeds, then the operator cancels.
	h.jobs.statusScript = []string{models.JobStatusRunning, models.JobStatusCancelling}

	err := h.svc.Run(context.Background(), h.jobs.job, entry())
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}

	if !h.jobs.cleared {
		t.Error("cancel must clear the checkpoint")
	}
	if h.jobs.job.Status != models.JobStatusActive {
		t.Errorf("cancelled job must stay schedulable as ACTIVE, got %s", h.jobs.job.Status)
	}
	if len(h.dispatcher.summaries) != 0 {
		t.Error("cancel must not send a summary mail")
	}
}

func TestRun_MemoryPause(t *testing.T) {
	// Second document boundary sees RSS over the pause threshold.
	calls := 0
	probe := func() int {
		calls++
		if calls >= 2 {
			return 1800
		}
		return 100
	}
	h := newHarness(t, docs("a.pdf", "b.pdf", "c.pdf"),
		WithMemoryProbe(probe, func() {}))

	err := h.svc.Run(context.Background(), h.jobs.job, entry())
	if !errors.Is(err, ErrRunPaused) {
		t.Fatalf("expected ErrRunPaused, got %v", err)
	}

	if h.jobs.job.Status != models.JobStatusPaused {
		t.Errorf("paused job should be PAUSED, got %s", h.jobs.job.Status)
	}
	if h.jobs.cleared {
		t.Error("pause must keep the checkpoint")
	}
	last := h.jobs.checkpointWrites[len(h.jobs.checkpointWrites)-1]
	if !last.IsResuming {
		t.Error("paused checkpoint must be marked resuming")
	}
	if last.ProcessedCount != 1 {
		t.Errorf("pause after one document should persist count 1, got %d", last.ProcessedCount)
	}
}

func TestRun_MemoryWarnCoolsDown(t *testing.T) {
	coolDowns := 0
	h := newHarness(t, docs("a.pdf", "b.pdf"),
		WithMemoryProbe(func() int { return 1600 }, func() { coolDowns++ }))

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if coolDowns != 2 {
		t.Errorf("expected a cool-down per document boundary, got %d", coolDowns)
	}
}

func TestRun_PerDocumentTimeout(t *testing.T) {
	h := newHarness(t, docs("slow.pdf"))
	h.classifier.block = true
	h.cfg.DocTimeout = "30ms"

	if err := h.svc.Run(context.Background(), h.jobs.job, entry()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The document is skipped with the timeout stage; the run itself finishes.
	if len(h.runItems.items) != 1 {
		t.Fatalf("expected 1 run item, got %d", len(h.runItems.items))
	}
	if h.runItems.items[0].Stage != models.StageTimeout {
		t.Errorf("expected timeout stage, got %s", h.runItems.items[0].Stage)
	}
	if len(h.matchStore.saved) != 0 {
		t.Error("timed-out document must not match")
	}
}

func TestRun_ManualRunSendsNoProgressWhenFinished(t *testing.T) {
	h := newHarness(t, docs("a.pdf"))

	e := entry()
	e.Force = true
	if err := h.svc.Run(context.Background(), h.jobs.job, e); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Everything processed by the final flush: summary yes, progress no.
	if len(h.dispatcher.progresses) != 0 {
		t.Errorf("finished manual run should send no progress mail, got %d", len(h.dispatcher.progresses))
	}
	if len(h.dispatcher.summaries) != 1 {
		t.Errorf("expected summary mail, got %d", len(h.dispatcher.summaries))
	}
	if h.jobs.checkpointWrites[0].TriggeredBy != "manual" {
		t.Errorf("forced run should record manual trigger, got %s", h.jobs.checkpointWrites[0].TriggeredBy)
	}
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC)
	job := &models.ScanJob{Schedule: models.JobSchedule{LookbackDays: 3}}

	t.Run("scheduled lookback", func(t *testing.T) {
		w, err := resolveWindow(job, &models.QueueEntry{}, now)
		if err != nil {
			t.Fatalf("resolveWindow failed: %v", err)
		}
		wantEnd := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
		if !w.End.Equal(wantEnd) {
			t.Errorf("end should be today 00:00 UTC, got %v", w.End)
		}
		if !w.Start.Equal(wantEnd.AddDate(0, 0, -3)) {
			t.Errorf("start should be 3 days back, got %v", w.Start)
		}
	})

	t.Run("entry target date scans the whole day", func(t *testing.T) {
		w, err := resolveWindow(job, &models.QueueEntry{TargetDate: "2026-08-01"}, now)
		if err != nil {
			t.Fatalf("resolveWindow failed: %v", err)
		}
		day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		if !w.Start.Equal(day) || !w.End.Equal(day.AddDate(0, 0, 1)) {
			t.Errorf("expected [%v, %v), got [%v, %v)", day, day.AddDate(0, 0, 1), w.Start, w.End)
		}
	})

	t.Run("job target date used when entry has none", func(t *testing.T) {
		j := &models.ScanJob{Schedule: models.JobSchedule{TargetDate: "2026-07-15"}}
		w, err := resolveWindow(j, &models.QueueEntry{}, now)
		if err != nil {
			t.Fatalf("resolveWindow failed: %v", err)
		}
		if w.Start.Day() != 15 || w.Start.Month() != time.July {
			t.Errorf("expected July 15 window, got %v", w.Start)
		}
	})

	t.Run("invalid target date", func(t *testing.T) {
		if _, err := resolveWindow(job, &models.QueueEntry{TargetDate: "bogus"}, now); err == nil {
			t.Error("invalid target date should error")
		}
	})

	t.Run("lookback clamps to one day minimum", func(t *testing.T) {
		j := &models.ScanJob{}
		w, err := resolveWindow(j, &models.QueueEntry{}, now)
		if err != nil {
			t.Fatalf("resolveWindow failed: %v", err)
		}
		if w.End.Sub(w.Start) != 24*time.Hour {
			t.Errorf("zero lookback should clamp to one day, got %v", w.End.Sub(w.Start))
		}
	})
}
