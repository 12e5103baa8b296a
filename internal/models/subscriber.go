package models

import "time"

// Subscriber is a customer receiving batched match notifications.
type Subscriber struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	SubscribedTypes []string          `json:"subscribed_types"`
	Filters         SubscriberFilters `json:"filters"`
	Active          bool              `json:"active"`
	LastEmailAt     time.Time         `json:"last_email_ts"`
	EmailCount      int               `json:"email_count"`
}

// SubscriberFilters restrict which projects a subscriber is notified about.
// Empty sets mean "no restriction".
type SubscriberFilters struct {
	AllowedRegions []string `json:"allowed_regions"`
	AllowedSectors []string `json:"allowed_sectors"`
}

// HasActiveFilter reports whether any filter set is non-empty. When a filter
// is active and project metadata cannot be fetched, matches are excluded
// (fail-closed).
func (f *SubscriberFilters) HasActiveFilter() bool {
	return len(f.AllowedRegions) > 0 || len(f.AllowedSectors) > 0
}

// SubscribesTo reports whether the subscriber wants the given report type.
func (s *Subscriber) SubscribesTo(reportType string) bool {
	for _, t := range s.SubscribedTypes {
		if t == reportType {
			return true
		}
	}
	return false
}
