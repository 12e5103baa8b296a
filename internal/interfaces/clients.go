// Package interfaces defines service contracts for Planhound
package interfaces

import (
	"context"
	"time"

	"github.com/planhound/planhound/internal/models"
)

// TimeWindow is a half-open modification-time window [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// ListPageRequest asks for one page of eligible documents.
//
// Resume semantics: if ContinuationToken is set it takes precedence and the
// enumeration continues from the server-side cursor. Otherwise, when
// StartAfterKey is set, entries are consumed from the beginning and every key
// lexicographically <= StartAfterKey is skipped (inclusive, so the boundary
// document is not reprocessed).
type ListPageRequest struct {
	Window            TimeWindow
	ContinuationToken string
	StartAfterKey     string
	PageSize          int32
}

// ListPageResult is one page of filtered entries plus the cursor to persist.
type ListPageResult struct {
	Entries   []models.ObjectInfo
	NextToken string
	Done      bool
}

// ObjectStoreClient enumerates and retrieves planning documents.
type ObjectStoreClient interface {
	// ListPage returns up to PageSize entries passing the eligibility
	// predicate (extension, project-layout key shape, modification window).
	ListPage(ctx context.Context, req ListPageRequest) (*ListPageResult, error)

	// CountDocuments walks the full prefix with the same predicate so the
	// returned total is authoritative for progress reporting.
	CountDocuments(ctx context.Context, window TimeWindow) (int, error)

	// Head returns the object size, or an error if the probe fails.
	Head(ctx context.Context, key string) (int64, error)

	// Fetch retrieves an object body, in memory for small objects or spilled
	// to a temp file above the streaming threshold. The returned cleanup
	// function must be called on every exit path; it removes the temp file.
	// Oversize objects fail with ErrOversizeObject without a body read.
	Fetch(ctx context.Context, key string) (*models.FetchedDocument, func(), error)

	// ListProjectFolders enumerates top-level project folders under the
	// prefix, served from a short-lived cache with single-flight coalescing.
	ListProjectFolders(ctx context.Context) ([]string, error)
}

// LLMClient is the two-method classifier contract backing stages 3-5.
// Both calls use deterministic decoding and enforced structured output.
type LLMClient interface {
	// CheapFilter asks the small model whether the prefix looks like an FI
	// request letter.
	CheapFilter(ctx context.Context, textPrefix string) (bool, error)

	// ClassifyFI runs full FI detection plus report-type matching with
	// validation-quote capture.
	ClassifyFI(ctx context.Context, text, targetType string) (*models.FIClassification, error)
}

// MetadataClient fetches planning-project enrichment records.
// A missing project returns (nil, nil); callers apply the fail-closed rule.
type MetadataClient interface {
	GetProjectMetadata(ctx context.Context, projectID string) (*models.ProjectMetadata, error)
}

// OCRClient is the black-box OCR sidecar: rasterise a PDF and OCR up to
// maxPages pages, returning the concatenated text.
type OCRClient interface {
	Extract(ctx context.Context, pdfPath string, maxPages int) (string, error)
}

// Mailer is the SMTP transport behind the notification dispatcher.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
