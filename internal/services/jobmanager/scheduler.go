package jobmanager

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// schedulerTick is how often due jobs are evaluated. Admission is
// single-flight keyed, so a tick finding an already-queued job is a no-op.
const schedulerTick = time.Minute

// Scheduler admits due scan jobs into the queue.
type Scheduler struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	parser  cron.Parser

	// now is a test seam.
	now func() time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(storage interfaces.StorageManager, logger *common.Logger) *Scheduler {
	return &Scheduler{
		storage: storage,
		logger:  logger,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick admits every due job.
func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.storage.ScanJobStore().List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scheduler: failed to list jobs")
		return
	}

	now := s.now()
	for _, job := range jobs {
		if !s.due(job, now) {
			continue
		}

		entry := &models.QueueEntry{
			Key:         models.JobKey(job.ID),
			JobID:       job.ID,
			TargetDate:  job.Schedule.TargetDate,
			Status:      models.QueueStatusWaiting,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
		}

		existing, admitted, err := s.storage.QueueStore().Admit(ctx, entry)
		if err != nil {
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Scheduler: admission failed")
			continue
		}
		if !admitted {
			s.logger.Debug().Str("job_id", job.ID).Str("status", existing.Status).Msg("Scheduler: job already queued")
			continue
		}

		s.logger.Info().Str("job_id", job.ID).Str("schedule", job.Schedule.Type).Msg("Scheduler: job admitted")
	}
}

// due decides whether a job should run now. ACTIVE jobs follow their
// schedule. A job the memory governor paused mid-run carries a resume marker
// on its checkpoint and is re-admitted at the next tick; every other
// non-ACTIVE state (operator pause or stop, cancelling, errored, currently
// running) waits for an operator or for its run to settle.
func (s *Scheduler) due(job *models.ScanJob, now time.Time) bool {
	if job.Status == models.JobStatusPaused && job.Checkpoint.IsResuming {
		return true
	}
	if job.Status != models.JobStatusActive {
		return false
	}

	switch job.Schedule.Type {
	case models.ScheduleDaily:
		return s.timeOfDayReached(job, now) && !ranToday(job, now)

	case models.ScheduleWeekly:
		if !s.timeOfDayReached(job, now) || daysSinceLastRun(job, now) < 7 {
			return false
		}
		// An unset day_of_week means any weekday once the week has elapsed.
		return job.Schedule.DayOfWeek == nil || int(now.Weekday()) == *job.Schedule.DayOfWeek

	case models.ScheduleMonthly:
		return s.timeOfDayReached(job, now) && daysSinceLastRun(job, now) >= 30

	case models.ScheduleCustom:
		return s.cronDue(job, now)

	default:
		return false
	}
}

// timeOfDayReached checks the job's HH:MM gate against the current UTC day.
func (s *Scheduler) timeOfDayReached(job *models.ScanJob, now time.Time) bool {
	tod := job.Schedule.TimeOfDay
	if tod == "" {
		return true
	}

	gate, err := time.ParseInLocation("15:04", tod, time.UTC)
	if err != nil {
		s.logger.Warn().Str("job_id", job.ID).Str("time_of_day", tod).Msg("Invalid time_of_day, treating as always due")
		return true
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), gate.Hour(), gate.Minute(), 0, 0, time.UTC)
	return !now.Before(today)
}

// cronDue evaluates a CUSTOM schedule: due when the expression fires between
// the last run and now.
func (s *Scheduler) cronDue(job *models.ScanJob, now time.Time) bool {
	expr := job.Schedule.CronExpr
	if expr == "" {
		return false
	}

	sched, err := s.parser.Parse(expr)
	if err != nil {
		s.logger.Warn().Str("job_id", job.ID).Str("cron", expr).Err(err).Msg("Invalid cron expression")
		return false
	}

	since := lastRunTime(job)
	if since.IsZero() {
		// Never ran: due if the expression fired in the last tick window.
		since = now.Add(-schedulerTick)
	}
	next := sched.Next(since)
	return !next.After(now)
}

func ranToday(job *models.ScanJob, now time.Time) bool {
	return job.Schedule.LastRunDate == now.Format("2006-01-02")
}

func daysSinceLastRun(job *models.ScanJob, now time.Time) int {
	last := lastRunTime(job)
	if last.IsZero() {
		return int(^uint(0) >> 1) // Never ran
	}
	return int(now.Sub(last).Hours() / 24)
}

func lastRunTime(job *models.ScanJob) time.Time {
	if job.Schedule.LastRunDate == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", job.Schedule.LastRunDate, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
