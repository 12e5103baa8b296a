package jobmanager

import (
	"testing"
	"time"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/models"
)

func testScheduler() *Scheduler {
	return NewScheduler(nil, common.NewSilentLogger())
}

func activeJob(schedule models.JobSchedule) *models.ScanJob {
	return &models.ScanJob{
		ID:       "job-1",
		Status:   models.JobStatusActive,
		Schedule: schedule,
	}
}

// Monday 2026-08-24 07:30 UTC.
var monday0730 = time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC)

func TestDue_OnlyActiveJobs(t *testing.T) {
	s := testScheduler()

	for _, status := range []string{
		models.JobStatusRunning, models.JobStatusPaused, models.JobStatusStopped,
		models.JobStatusCancelling, models.JobStatusError,
	} {
		job := activeJob(models.JobSchedule{Type: models.ScheduleDaily})
		job.Status = status
		if s.due(job, monday0730) {
			t.Errorf("%s job must never be due", status)
		}
	}
}

func TestDue_GovernorPausedJobResumes(t *testing.T) {
	s := testScheduler()

	// A memory-governor pause leaves the checkpoint carrying the resume
	// marker; the next tick re-admits the job regardless of its schedule.
	job := activeJob(models.JobSchedule{Type: models.ScheduleDaily, TimeOfDay: "23:00", LastRunDate: "2026-08-24"})
	job.Status = models.JobStatusPaused
	job.Checkpoint = models.Checkpoint{
		ProcessedCount:   150,
		LastProcessedKey: "planning/PA-9/letter.pdf",
		TotalDocuments:   500,
		IsResuming:       true,
	}
	if !s.due(job, monday0730) {
		t.Error("governor-paused job must be re-admitted at the next tick")
	}

	// An operator pause has no resume marker and waits for StartJob.
	job.Checkpoint = models.Checkpoint{}
	if s.due(job, monday0730) {
		t.Error("operator-paused job must not be re-admitted by the scheduler")
	}
}

func TestDue_Daily(t *testing.T) {
	s := testScheduler()

	job := activeJob(models.JobSchedule{Type: models.ScheduleDaily, TimeOfDay: "06:00"})
	if !s.due(job, monday0730) {
		t.Error("daily job past its gate should be due")
	}

	// Before the time-of-day gate.
	early := time.Date(2026, 8, 24, 5, 59, 0, 0, time.UTC)
	if s.due(job, early) {
		t.Error("daily job before its gate must not be due")
	}

	// Already ran today.
	job.Schedule.LastRunDate = "2026-08-24"
	if s.due(job, monday0730) {
		t.Error("daily job must run at most once per day")
	}

	// Ran yesterday: due again.
	job.Schedule.LastRunDate = "2026-08-23"
	if !s.due(job, monday0730) {
		t.Error("daily job that ran yesterday should be due")
	}
}

func TestDue_DailyInvalidTimeOfDay(t *testing.T) {
	s := testScheduler()

	job := activeJob(models.JobSchedule{Type: models.ScheduleDaily, TimeOfDay: "not-a-time"})
	if !s.due(job, monday0730) {
		t.Error("invalid time_of_day degrades to always due")
	}
}

func TestDue_Weekly(t *testing.T) {
	s := testScheduler()

	mondays := int(time.Monday)
	job := activeJob(models.JobSchedule{
		Type:      models.ScheduleWeekly,
		TimeOfDay: "06:00",
		DayOfWeek: &mondays,
	})
	if !s.due(job, monday0730) {
		t.Error("weekly job on its weekday past the gate should be due")
	}

	// Wrong weekday.
	tuesday := monday0730.AddDate(0, 0, 1)
	if s.due(job, tuesday) {
		t.Error("weekly job on the wrong weekday must not be due")
	}

	// Ran six days ago: the week has not elapsed.
	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -6).Format("2006-01-02")
	if s.due(job, monday0730) {
		t.Error("weekly job must wait a full week between runs")
	}

	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -7).Format("2006-01-02")
	if !s.due(job, monday0730) {
		t.Error("weekly job a week after its last run should be due")
	}
}

func TestDue_WeeklyWithoutDayOfWeek(t *testing.T) {
	s := testScheduler()

	// No day_of_week pin: due on any weekday once a week has elapsed.
	job := activeJob(models.JobSchedule{Type: models.ScheduleWeekly, TimeOfDay: "06:00"})
	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -7).Format("2006-01-02")
	if !s.due(job, monday0730) {
		t.Error("unpinned weekly job a week after its last run should be due")
	}

	tuesday := monday0730.AddDate(0, 0, 1)
	job.Schedule.LastRunDate = tuesday.AddDate(0, 0, -8).Format("2006-01-02")
	if !s.due(job, tuesday) {
		t.Error("unpinned weekly job should be due regardless of weekday")
	}

	// The elapsed-week minimum still applies.
	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -3).Format("2006-01-02")
	if s.due(job, monday0730) {
		t.Error("unpinned weekly job must still wait a full week")
	}
}

func TestDue_Monthly(t *testing.T) {
	s := testScheduler()

	job := activeJob(models.JobSchedule{Type: models.ScheduleMonthly, TimeOfDay: "06:00"})
	if !s.due(job, monday0730) {
		t.Error("monthly job that never ran should be due")
	}

	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -29).Format("2006-01-02")
	if s.due(job, monday0730) {
		t.Error("monthly job must wait 30 days between runs")
	}

	job.Schedule.LastRunDate = monday0730.AddDate(0, 0, -30).Format("2006-01-02")
	if !s.due(job, monday0730) {
		t.Error("monthly job 30 days after its last run should be due")
	}
}

func TestDue_Custom(t *testing.T) {
	s := testScheduler()

	// Fires at 07:00 daily; never ran, and the last tick window does not
	// cover 07:00 at 07:30.
	job := activeJob(models.JobSchedule{Type: models.ScheduleCustom, CronExpr: "0 7 * * *"})
	if s.due(job, monday0730) {
		t.Error("cron fire outside the tick window must not be due")
	}

	// At 07:00 sharp the expression fired within the last minute.
	at0700 := time.Date(2026, 8, 24, 7, 0, 30, 0, time.UTC)
	if !s.due(job, at0700) {
		t.Error("cron fire inside the tick window should be due")
	}

	// With a last run on record, any fire since then counts.
	job.Schedule.LastRunDate = "2026-08-23"
	if !s.due(job, monday0730) {
		t.Error("cron fire since the last run should be due")
	}

	// Invalid expression never fires.
	bad := activeJob(models.JobSchedule{Type: models.ScheduleCustom, CronExpr: "nonsense"})
	if s.due(bad, monday0730) {
		t.Error("invalid cron expression must not be due")
	}

	// Empty expression never fires.
	empty := activeJob(models.JobSchedule{Type: models.ScheduleCustom})
	if s.due(empty, monday0730) {
		t.Error("empty cron expression must not be due")
	}
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
	}
	for _, tc := range cases {
		if got := retryBackoff(tc.attempts); got != tc.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
