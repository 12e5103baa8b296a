// Package gemini provides the Gemini-backed classifier client
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/models"
)

const (
	DefaultModel      = "gemini-2.0-flash"
	DefaultCheapModel = "gemini-2.0-flash-lite"
	DefaultTimeout    = 60 * time.Second

	callMaxRetries = 3
)

// Client implements the LLMClient interface
type Client struct {
	client     *genai.Client
	model      string
	cheapModel string
	timeout    time.Duration
	logger     *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the full-classification model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithCheapModel sets the pre-filter model
func WithCheapModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.cheapModel = model
		}
	}
}

// WithTimeout sets the per-call wall clock
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:     genaiClient,
		model:      DefaultModel,
		cheapModel: DefaultCheapModel,
		timeout:    DefaultTimeout,
		logger:     common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// cheapFilterResponse is the enforced pre-filter output shape.
type cheapFilterResponse struct {
	LikelyFI bool `json:"likely_fi"`
}

// CheapFilter asks the small model whether the prefix looks like a further
// information request letter. Deterministic decoding, structured output.
func (c *Client) CheapFilter(ctx context.Context, textPrefix string) (bool, error) {
	c.logger.Debug().Str("model", c.cheapModel).Int("chars", len(textPrefix)).Msg("Running cheap FI pre-filter")

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"likely_fi": {Type: genai.TypeBoolean},
			},
			Required: []string{"likely_fi"},
		},
	}

	raw, err := c.generateWithRetry(ctx, c.cheapModel, buildCheapFilterPrompt(textPrefix), config)
	if err != nil {
		return false, fmt.Errorf("cheap filter call failed: %w", err)
	}

	var resp cheapFilterResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return false, fmt.Errorf("failed to parse cheap filter response: %w", err)
	}

	return resp.LikelyFI, nil
}

// fiClassifyResponse is the enforced full-classification output shape.
type fiClassifyResponse struct {
	IsFI            bool    `json:"is_fi"`
	MatchesType     bool    `json:"matches_type"`
	ValidationQuote string  `json:"validation_quote"`
	Confidence      float64 `json:"confidence"`
}

// ClassifyFI runs full FI detection plus report-type matching against the
// large model. The validation quote must be verbatim from the document;
// callers verify it against the source text.
func (c *Client) ClassifyFI(ctx context.Context, text, targetType string) (*models.FIClassification, error) {
	c.logger.Debug().Str("model", c.model).Str("target_type", targetType).Int("chars", len(text)).Msg("Running full FI classification")

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"is_fi":            {Type: genai.TypeBoolean},
				"matches_type":     {Type: genai.TypeBoolean},
				"validation_quote": {Type: genai.TypeString},
				"confidence":       {Type: genai.TypeNumber},
			},
			Required: []string{"is_fi", "matches_type", "validation_quote", "confidence"},
		},
	}

	raw, err := c.generateWithRetry(ctx, c.model, buildClassifyPrompt(text, targetType), config)
	if err != nil {
		return nil, fmt.Errorf("FI classification call failed: %w", err)
	}

	var resp fiClassifyResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse FI classification response: %w", err)
	}

	return &models.FIClassification{
		IsFI:            resp.IsFI,
		MatchesType:     resp.MatchesType,
		ValidationQuote: resp.ValidationQuote,
		Confidence:      resp.Confidence,
	}, nil
}

// generateWithRetry issues one generation call under the per-call timeout,
// retrying transient failures with jittered exponential backoff.
func (c *Client) generateWithRetry(ctx context.Context, model, prompt string, config *genai.GenerateContentConfig) (string, error) {
	var text string

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		result, err := c.client.Models.GenerateContent(callCtx, model, genai.Text(prompt), config)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		text, err = extractTextFromResponse(result)
		if err != nil {
			return err
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), callMaxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return "", err
	}
	return text, nil
}

// extractTextFromResponse extracts text from a generate content response
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}

	return text, nil
}

// Close closes the client
func (c *Client) Close() error {
	// The genai client doesn't have a Close method
	return nil
}

// Ensure Client implements LLMClient
var _ interfaces.LLMClient = (*Client)(nil)
