// Package ocr provides a client for the OCR sidecar service.
//
// The sidecar rasterises PDF pages and runs OCR over them; this client
// treats it as a black box and only shapes the request and the timeout.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
)

const (
	DefaultDPI         = 200
	DefaultPageTimeout = 30 * time.Second
)

// Client implements the OCRClient interface
type Client struct {
	baseURL     string
	dpi         int
	pageTimeout time.Duration
	httpClient  *http.Client
	logger      *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDPI sets the rasterisation DPI
func WithDPI(dpi int) ClientOption {
	return func(c *Client) {
		if dpi > 0 {
			c.dpi = dpi
		}
	}
}

// WithPageTimeout sets the per-page OCR budget
func WithPageTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.pageTimeout = timeout
		}
	}
}

// NewClient creates a new OCR sidecar client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		dpi:         DefaultDPI,
		pageTimeout: DefaultPageTimeout,
		httpClient:  &http.Client{},
		logger:      common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type extractRequest struct {
	Path     string `json:"path"`
	MaxPages int    `json:"max_pages"`
	DPI      int    `json:"dpi"`
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// Extract OCRs up to maxPages pages of the PDF at pdfPath and returns the
// concatenated text. The deadline scales with the page budget so a large
// page cap does not starve the per-document timeout upstream.
func (c *Client) Extract(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(maxPages)*c.pageTimeout)
	defer cancel()

	payload, err := json.Marshal(extractRequest{
		Path:     pdfPath,
		MaxPages: maxPages,
		DPI:      c.dpi,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("path", pdfPath).Int("max_pages", maxPages).Msg("OCR extract request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute OCR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OCR service error (status %d): %s", resp.StatusCode, string(body))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}

	c.logger.Debug().Int("pages", out.Pages).Int("chars", len(out.Text)).Msg("OCR extract complete")
	return out.Text, nil
}

// Ensure Client implements OCRClient
var _ interfaces.OCRClient = (*Client)(nil)
