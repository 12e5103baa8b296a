// Package matcher groups confirmed matches into per-subscriber batches and
// applies each subscriber's region and sector filters.
package matcher

import (
	"context"
	"strings"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// Service implements the SubscriberMatcher interface.
type Service struct {
	subscribers interfaces.SubscriberStore
	metadata    interfaces.MetadataClient
	logger      *common.Logger
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new subscriber matcher.
func NewService(subscribers interfaces.SubscriberStore, metadata interfaces.MetadataClient, opts ...ServiceOption) *Service {
	s := &Service{
		subscribers: subscribers,
		metadata:    metadata,
		logger:      common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// BuildBatches enriches the flushed matches with project metadata and groups
// them per subscriber. Subscribers with no surviving matches get no batch,
// so the dispatcher never sends empty mail.
//
// Filtering is fail-closed: a subscriber with an active region or sector
// filter never receives a match whose project metadata is missing.
func (s *Service) BuildBatches(ctx context.Context, job *models.ScanJob, matches []models.MatchRecord) ([]interfaces.SubscriberBatch, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	recipients, err := s.resolveRecipients(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		s.logger.Debug().Str("job_id", job.ID).Msg("No active subscribers for job")
		return nil, nil
	}

	enriched := s.enrich(ctx, matches)

	var batches []interfaces.SubscriberBatch
	for _, sub := range recipients {
		if !sub.SubscribesTo(job.DocumentType) {
			continue
		}

		var kept []interfaces.EnrichedMatch
		for _, em := range enriched {
			if s.allowed(sub, em) {
				kept = append(kept, em)
			}
		}
		if len(kept) == 0 {
			continue
		}

		batches = append(batches, interfaces.SubscriberBatch{
			Subscriber: sub,
			Matches:    kept,
		})
	}

	return batches, nil
}

// resolveRecipients returns the job's customer list when set, otherwise all
// active subscribers.
func (s *Service) resolveRecipients(ctx context.Context, job *models.ScanJob) ([]*models.Subscriber, error) {
	if len(job.Customers) > 0 {
		return s.subscribers.ListByIDs(ctx, job.Customers)
	}
	return s.subscribers.ListActive(ctx)
}

// enrich fetches project metadata for each distinct project once per flush.
// Lookup failure leaves Project nil; the fail-closed rule handles the rest.
func (s *Service) enrich(ctx context.Context, matches []models.MatchRecord) []interfaces.EnrichedMatch {
	metaByProject := make(map[string]*models.ProjectMetadata)

	enriched := make([]interfaces.EnrichedMatch, 0, len(matches))
	for _, m := range matches {
		meta, seen := metaByProject[m.ProjectID]
		if !seen {
			var err error
			meta, err = s.metadata.GetProjectMetadata(ctx, m.ProjectID)
			if err != nil {
				s.logger.Warn().Str("project_id", m.ProjectID).Err(err).Msg("Project metadata lookup failed")
				meta = nil
			}
			metaByProject[m.ProjectID] = meta
		}
		enriched = append(enriched, interfaces.EnrichedMatch{Match: m, Project: meta})
	}

	return enriched
}

// allowed applies the subscriber's filters to one enriched match.
func (s *Service) allowed(sub *models.Subscriber, em interfaces.EnrichedMatch) bool {
	if !sub.Filters.HasActiveFilter() {
		return true
	}
	if em.Project == nil {
		// Fail-closed: cannot prove the project passes the filter.
		return false
	}
	// The region filter is expressed in counties: subscribers name the
	// counties they care about, and the project record carries one.
	if !valueAllowed(em.Project.PlanningCounty, sub.Filters.AllowedRegions) {
		return false
	}
	if !valueAllowed(em.Project.PlanningSector, sub.Filters.AllowedSectors) {
		return false
	}
	return true
}

// valueAllowed checks membership case-insensitively with trimmed whitespace.
// An empty allow-list means no restriction on that dimension.
func valueAllowed(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// Ensure Service implements SubscriberMatcher
var _ interfaces.SubscriberMatcher = (*Service)(nil)
