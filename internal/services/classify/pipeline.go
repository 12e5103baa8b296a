// Package classify implements the staged document classifier: cheap
// deterministic rejections first, then the small-model pre-filter, then full
// FI detection and report-type matching, with lexicon and verbatim-quote
// validation on the way out.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

const (
	// charsPerPage is the estimate used for the length gate.
	charsPerPage = 2500

	// maxEstimatedPages rejects documents too deep to be FI request letters.
	maxEstimatedPages = 100

	// prefilterChars is how much text the cheap model sees.
	prefilterChars = 5000
)

// filenameBlocklist rejects documents before any text is read. Matched
// against the lowercased name with _ and - normalised to spaces.
var filenameBlocklist = []string{
	// The response side of an FI exchange, or the authority's decision:
	// an FI request letter never carries these in its name.
	"f.i. received",
	"fi received",
	"f.i. response",
	"fi response",
	"response to further information",
	"further information received",
	"decision",
	"grant",
	// Application paperwork and drawings.
	"application form",
	"cover letter",
	"site notice",
	"newspaper notice",
	"drawing",
	"site plan",
	"floor plan",
	"elevation",
	"map",
	"photomontage",
	"receipt",
	"fee",
}

// filenameNormalizer collapses the separators planning portals use in object
// names so multi-word markers match.
var filenameNormalizer = strings.NewReplacer("_", " ", "-", " ")

// structureMarkers identify consultant-report structure. An FI request is a
// letter; a table of contents or report boilerplate means this is the report
// itself, not a request for one.
var structureMarkers = []string{
	"table of contents",
	"executive summary",
	"this report has been prepared by",
	"prepared on behalf of",
	"1.1 introduction",
}

// Pipeline implements the ClassifierPipeline interface.
type Pipeline struct {
	llm    interfaces.LLMClient
	cache  *decisionCache
	logger *common.Logger
}

// PipelineOption configures the pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a new classifier pipeline.
func NewPipeline(llm interfaces.LLMClient, opts ...PipelineOption) (*Pipeline, error) {
	cache, err := newDecisionCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	p := &Pipeline{
		llm:    llm,
		cache:  cache,
		logger: common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Classify runs the cascade over one document. Deterministic stages run
// before any model call; LLM results are cached keyed on the text prefix,
// target type, and project.
func (p *Pipeline) Classify(ctx context.Context, fileName, text, projectID, targetType string) (*models.Classification, error) {
	// Stage 0: filename gate.
	if reason, rejected := rejectByFilename(fileName); rejected {
		return &models.Classification{Stage: models.StageFilenameReject, Reason: reason}, nil
	}

	// Stage 1: length gate.
	if pages := len(text) / charsPerPage; pages > maxEstimatedPages {
		return &models.Classification{
			Stage:  models.StageLengthReject,
			Reason: fmt.Sprintf("estimated %d pages", pages),
		}, nil
	}

	// Stage 2: structural gate.
	if marker, rejected := rejectByStructure(text); rejected {
		return &models.Classification{Stage: models.StageStructureReject, Reason: marker}, nil
	}

	// LLM stages are cached as a unit: everything before this point is cheap
	// to recompute, everything after costs tokens.
	key := p.cache.key(text, targetType, projectID)
	if cached, ok := p.cache.get(key); ok {
		p.logger.Debug().Str("file", fileName).Str("stage", cached.Stage).Msg("Classifier cache hit")
		hit := cached
		hit.Stage = models.StageCacheHit
		hit.Reason = cached.Stage
		return &hit, nil
	}

	cls, err := p.classifyWithModel(ctx, text, targetType)
	if err != nil {
		return nil, err
	}

	p.cache.put(key, *cls)
	return cls, nil
}

// classifyWithModel runs stages 3-5: cheap pre-filter, full FI detection and
// type matching, then lexicon and quote validation.
func (p *Pipeline) classifyWithModel(ctx context.Context, text, targetType string) (*models.Classification, error) {
	// Stage 3: cheap pre-filter on the opening of the document.
	prefix := text
	if len(prefix) > prefilterChars {
		prefix = prefix[:prefilterChars]
	}

	likely, err := p.llm.CheapFilter(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("pre-filter failed: %w", err)
	}
	if !likely {
		return &models.Classification{Stage: models.StagePrefilterReject}, nil
	}

	// Stages 4-5: full FI detection plus report-type matching.
	fi, err := p.llm.ClassifyFI(ctx, text, targetType)
	if err != nil {
		return nil, fmt.Errorf("full classification failed: %w", err)
	}

	if !fi.IsFI {
		return &models.Classification{Stage: models.StageNotFI, Confidence: fi.Confidence}, nil
	}
	if !fi.MatchesType {
		return &models.Classification{Stage: models.StageTypeMismatch, Confidence: fi.Confidence}, nil
	}

	// Quote validation: the supporting passage must exist verbatim in the
	// document, and it must speak the target type's language.
	if !QuoteInText(fi.ValidationQuote, text) {
		return &models.Classification{
			Stage:      models.StageQuoteRejected,
			Confidence: fi.Confidence,
			Reason:     "validation quote not found in document",
		}, nil
	}
	if !ContainsLexiconTerm(fi.ValidationQuote, targetType) {
		return &models.Classification{
			Stage:      models.StageQuoteRejected,
			Confidence: fi.Confidence,
			Reason:     fmt.Sprintf("quote has no %s lexicon term", targetType),
		}, nil
	}

	return &models.Classification{
		Match:           true,
		Stage:           models.StageMatch,
		FIType:          targetType,
		ValidationQuote: fi.ValidationQuote,
		Confidence:      fi.Confidence,
	}, nil
}

func rejectByFilename(fileName string) (string, bool) {
	normalized := filenameNormalizer.Replace(strings.ToLower(fileName))
	for _, blocked := range filenameBlocklist {
		if strings.Contains(normalized, blocked) {
			return blocked, true
		}
	}
	return "", false
}

func rejectByStructure(text string) (string, bool) {
	// Markers are only meaningful near the front of the document; a letter
	// quoting report structure later on should not be rejected.
	head := text
	if len(head) > prefilterChars {
		head = head[:prefilterChars]
	}
	lower := strings.ToLower(head)
	for _, marker := range structureMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

// Ensure Pipeline implements ClassifierPipeline
var _ interfaces.ClassifierPipeline = (*Pipeline)(nil)
