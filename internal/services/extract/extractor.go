// Package extract turns fetched planning documents into plain text for the
// classifier: native PDF and DOCX extraction with an OCR fallback for
// scanned documents.
package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

// Service implements the Extractor interface.
type Service struct {
	ocr            interfaces.OCRClient
	maxChars       int
	ocrMinChars    int
	ocrMaxPages    int
	ocrMemMarginMB int
	logger         *common.Logger
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOCR enables the OCR fallback for image-only PDFs.
func WithOCR(client interfaces.OCRClient, maxPages, memoryMarginMB int) ServiceOption {
	return func(s *Service) {
		s.ocr = client
		s.ocrMaxPages = maxPages
		s.ocrMemMarginMB = memoryMarginMB
	}
}

// NewService creates a new extraction service.
func NewService(maxChars, ocrMinChars int, opts ...ServiceOption) *Service {
	s := &Service{
		maxChars:    maxChars,
		ocrMinChars: ocrMinChars,
		logger:      common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Extract produces capped plain text from a fetched document. Corrupt
// documents return OK=false with a reason; they are skipped, never fatal.
func (s *Service) Extract(ctx context.Context, doc *models.FetchedDocument) models.ExtractResult {
	src := docSource{data: doc.Data, path: doc.Path}

	switch doc.Format {
	case models.FormatDOCX:
		text, truncated, err := extractDOCX(src, s.maxChars)
		if err != nil {
			s.logger.Warn().Str("key", doc.Key).Err(err).Msg("DOCX extraction failed")
			return models.ExtractResult{Reason: err.Error()}
		}
		return models.ExtractResult{
			Text:      text,
			CharCount: len(text),
			Truncated: truncated,
			OK:        true,
		}

	case models.FormatPDF:
		return s.extractPDF(ctx, doc, src)

	default:
		return models.ExtractResult{Reason: fmt.Sprintf("unsupported format %q", doc.Format)}
	}
}

func (s *Service) extractPDF(ctx context.Context, doc *models.FetchedDocument, src docSource) models.ExtractResult {
	native, err := extractPDF(src, s.maxChars)
	if err != nil {
		s.logger.Warn().Str("key", doc.Key).Err(err).Msg("PDF extraction failed")
		return models.ExtractResult{Reason: err.Error()}
	}

	result := models.ExtractResult{
		Text:      native.Text,
		CharCount: len(native.Text),
		Truncated: native.Truncated,
		OK:        true,
	}

	// OCR fallback: only for documents that look scanned (no native text on
	// any page) and produced less than the useful minimum.
	if result.CharCount >= s.ocrMinChars || native.TextPages > 0 {
		return result
	}
	if s.ocr == nil {
		return result
	}
	if !s.ocrMemoryOK() {
		s.logger.Warn().Str("key", doc.Key).Msg("Skipping OCR fallback, memory margin too low")
		return result
	}

	text, ocrErr := s.runOCR(ctx, doc)
	if ocrErr != nil {
		s.logger.Warn().Str("key", doc.Key).Err(ocrErr).Msg("OCR fallback failed")
		return result
	}

	if len(text) > s.maxChars {
		text = text[:s.maxChars]
		result.Truncated = true
	}
	result.Text = text
	result.CharCount = len(text)
	result.UsedOCR = true
	return result
}

// runOCR hands the document to the sidecar, spilling in-memory bodies to a
// temp file first since the sidecar works from paths.
func (s *Service) runOCR(ctx context.Context, doc *models.FetchedDocument) (string, error) {
	path := doc.Path
	if doc.InMemory() {
		tmp, err := os.CreateTemp("", "planhound-ocr-*.pdf")
		if err != nil {
			return "", fmt.Errorf("failed to create OCR temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(doc.Data); err != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to write OCR temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return "", fmt.Errorf("failed to close OCR temp file: %w", err)
		}
		path = tmp.Name()
	}

	return s.ocr.Extract(ctx, path, s.ocrMaxPages)
}

// ocrMemoryOK checks the free-memory margin before rasterisation. Unknown
// availability (0) does not block OCR.
func (s *Service) ocrMemoryOK() bool {
	avail := common.AvailableMemoryMB()
	if avail == 0 {
		return true
	}
	return avail >= s.ocrMemMarginMB
}

// Ensure Service implements Extractor
var _ interfaces.Extractor = (*Service)(nil)
