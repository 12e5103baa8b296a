// Package notify formats and dispatches subscriber match batches and
// operator progress/summary mail, recording every delivery attempt.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// Dispatcher implements the NotificationDispatcher interface.
type Dispatcher struct {
	mailer      interfaces.Mailer
	subscribers interfaces.SubscriberStore
	deliveries  interfaces.DeliveryStore
	logger      *common.Logger
}

// DispatcherOption configures the dispatcher
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(mailer interfaces.Mailer, subscribers interfaces.SubscriberStore, deliveries interfaces.DeliveryStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		mailer:      mailer,
		subscribers: subscribers,
		deliveries:  deliveries,
		logger:      common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// SendMatchBatch sends one email covering every match in the batch. One
// email per subscriber per flush; the scanner owns clearing its accumulator
// after a successful dispatch round.
func (d *Dispatcher) SendMatchBatch(ctx context.Context, jobID string, batch interfaces.SubscriberBatch) error {
	sub := batch.Subscriber
	subject := fmt.Sprintf("Planhound: %d new FI request match(es)", len(batch.Matches))
	body := formatMatchBatch(sub, batch.Matches)

	err := d.mailer.Send(ctx, sub.Email, subject, body)
	d.record(ctx, jobID, sub.Email, models.DeliveryKindMatchBatch, len(batch.Matches), err)
	if err != nil {
		return fmt.Errorf("failed to send match batch to %s: %w", sub.Email, err)
	}

	if err := d.subscribers.RecordEmail(ctx, sub.ID, time.Now().UTC()); err != nil {
		// The mail is already out; counter drift is tolerable.
		d.logger.Warn().Str("subscriber_id", sub.ID).Err(err).Msg("Failed to record subscriber email")
	}

	return nil
}

// SendProgress sends the operator progress mail for a manual run.
func (d *Dispatcher) SendProgress(ctx context.Context, addr string, report interfaces.ProgressReport) error {
	subject := fmt.Sprintf("Planhound scan progress: %s (%d/%d)", report.JobName, report.Processed, report.Total)
	body := formatProgress(report)

	err := d.mailer.Send(ctx, addr, subject, body)
	d.record(ctx, report.JobID, addr, models.DeliveryKindProgress, report.MatchesFound, err)
	if err != nil {
		return fmt.Errorf("failed to send progress mail: %w", err)
	}
	return nil
}

// SendSummary sends the end-of-run summary mail.
func (d *Dispatcher) SendSummary(ctx context.Context, addr string, report interfaces.SummaryReport) error {
	subject := fmt.Sprintf("Planhound scan complete: %s (%d matches)", report.JobName, report.MatchesFound)
	body := formatSummary(report)

	err := d.mailer.Send(ctx, addr, subject, body)
	d.record(ctx, report.JobID, addr, models.DeliveryKindSummary, report.MatchesFound, err)
	if err != nil {
		return fmt.Errorf("failed to send summary mail: %w", err)
	}
	return nil
}

// record persists one delivery attempt, success or failure.
func (d *Dispatcher) record(ctx context.Context, jobID, recipient, kind string, matchCount int, sendErr error) {
	rec := &models.DeliveryRecord{
		ID:         uuid.NewString(),
		JobID:      jobID,
		Recipient:  recipient,
		Kind:       kind,
		MatchCount: matchCount,
		Succeeded:  sendErr == nil,
		SentAt:     time.Now().UTC(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}

	if err := d.deliveries.Save(ctx, rec); err != nil {
		d.logger.Warn().Str("job_id", jobID).Str("recipient", recipient).Err(err).Msg("Failed to persist delivery record")
	}
}

func formatMatchBatch(sub *models.Subscriber, matches []interfaces.EnrichedMatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s,\n\n", sub.Name)
	fmt.Fprintf(&sb, "New further information requests matching your subscription:\n\n")

	for i, em := range matches {
		m := em.Match
		fmt.Fprintf(&sb, "%d. %s (project %s)\n", i+1, m.FileName, m.ProjectID)
		fmt.Fprintf(&sb, "   Report type: %s (confidence %.2f)\n", m.FIType, m.Confidence)
		if m.ValidationQuote != "" {
			fmt.Fprintf(&sb, "   Quote: %q\n", m.ValidationQuote)
		}
		if em.Project != nil {
			fmt.Fprintf(&sb, "   Project: %s — %s, %s\n", em.Project.PlanningTitle, em.Project.PlanningCounty, em.Project.PlanningRegion)
			if em.Project.BiiURL != "" {
				fmt.Fprintf(&sb, "   Link: %s\n", em.Project.BiiURL)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("— Planhound\n")
	return sb.String()
}

func formatProgress(r interfaces.ProgressReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan %q progress\n\n", r.JobName)
	fmt.Fprintf(&sb, "Processed: %d of %d documents\n", r.Processed, r.Total)
	fmt.Fprintf(&sb, "Matches so far: %d\n", r.MatchesFound)

	if len(r.RecentMatches) > 0 {
		sb.WriteString("\nRecent matches:\n")
		for _, m := range r.RecentMatches {
			fmt.Fprintf(&sb, "- %s (project %s, %s)\n", m.FileName, m.ProjectID, m.FIType)
		}
	}
	return sb.String()
}

func formatSummary(r interfaces.SummaryReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan %q finished\n\n", r.JobName)
	fmt.Fprintf(&sb, "Started:   %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Finished:  %s\n", r.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Processed: %d of %d documents\n", r.Processed, r.Total)
	fmt.Fprintf(&sb, "Matches:   %d\n", r.MatchesFound)
	fmt.Fprintf(&sb, "Emails:    %d\n", r.EmailsSent)

	if len(r.Matches) > 0 {
		sb.WriteString("\nMatches:\n")
		for _, m := range r.Matches {
			fmt.Fprintf(&sb, "- %s (project %s, %s, confidence %.2f)\n", m.FileName, m.ProjectID, m.FIType, m.Confidence)
		}
	}

	if len(r.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	return sb.String()
}

// Ensure Dispatcher implements NotificationDispatcher
var _ interfaces.NotificationDispatcher = (*Dispatcher)(nil)
