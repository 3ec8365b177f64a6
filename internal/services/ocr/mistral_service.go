// Package ocr extracts text from uploaded documents through the hosted
// Mistral OCR API.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the base URL for the Mistral API.
	DefaultEndpoint = "https://api.mistral.ai"

	// DefaultModel is the OCR model used when none is configured.
	DefaultModel = "mistral-ocr-latest"

	// maxDocumentSize is the API's upload ceiling.
	maxDocumentSize = 50 * 1024 * 1024
)

// MistralService implements the OCRService interface against the
// Mistral OCR endpoint. Documents are uploaded inline as base64 data
// URIs and come back as per-page markdown.
type MistralService struct {
	config     *common.OCRConfig
	logger     arbor.ILogger
	endpoint   string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *common.RetryPolicy
}

// Compile-time assertion
var _ interfaces.OCRService = (*MistralService)(nil)

// APIError represents an error response from the Mistral API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mistral API error: %s (status %d)", e.Message, e.StatusCode)
}

// isRetryableOCR reports whether an OCR failure is worth another attempt.
// Rate limiting and server-side errors are transient; malformed or
// rejected documents are not.
func isRetryableOCR(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	// Network-level failures (timeouts, connection resets) surface as
	// plain errors from the HTTP client.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// NewMistralService creates a new Mistral OCR service instance
func NewMistralService(config *common.OCRConfig, logger arbor.ILogger) (*MistralService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Mistral API key is required for OCR service (set MISTRAL_API_KEY or ocr.api_key in config)")
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	timeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.RequestTimeout, err)
	}

	rps := config.RateLimit
	if rps <= 0 {
		rps = 2
	}

	service := &MistralService{
		config:   config,
		logger:   logger,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   common.NewRetryPolicy(config.RetryAttempts, isRetryableOCR),
	}

	logger.Info().
		Str("endpoint", service.endpoint).
		Str("model", model).
		Dur("timeout", timeout).
		Msg("Mistral OCR service initialized")

	return service, nil
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Extract runs OCR over the document content and returns tagged text
// segments in reading order.
func (s *MistralService) Extract(ctx context.Context, content []byte, mimeHint string) ([]models.Segment, error) {
	if len(content) == 0 {
		return nil, interfaces.NewInputError("document content is empty")
	}
	if len(content) > maxDocumentSize {
		return nil, interfaces.NewInputError("document exceeds %d byte OCR limit", maxDocumentSize)
	}

	start := time.Now()
	var response ocrResponse
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
		return s.process(ctx, content, mimeHint, &response)
	})
	if err != nil {
		s.logger.Error().Err(err).Int("size_bytes", len(content)).Msg("OCR extraction failed")
		return nil, s.wrapOCRError(err)
	}

	markdown := joinPages(response.Pages)
	segments := ParseMarkdownSegments(markdown)
	if len(segments) == 0 {
		return nil, interfaces.NewPermanentServiceError("ocr", fmt.Errorf("no text extracted from document"))
	}

	s.logger.Info().
		Int("pages", len(response.Pages)).
		Int("segments", len(segments)).
		Dur("duration", time.Since(start)).
		Msg("OCR extraction completed")

	return segments, nil
}

func (s *MistralService) process(ctx context.Context, content []byte, mimeHint string, out *ocrResponse) error {
	dataURI := fmt.Sprintf("data:%s;base64,%s", normalizeMime(mimeHint), base64.StdEncoding.EncodeToString(content))

	request := ocrRequest{Model: s.model}
	if strings.HasPrefix(normalizeMime(mimeHint), "image/") {
		request.Document = ocrDocument{Type: "image_url", ImageURL: dataURI}
	} else {
		request.Document = ocrDocument{Type: "document_url", DocumentURL: dataURI}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/ocr", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode OCR response: %w", err)
	}

	return nil
}

// HealthCheck verifies the OCR service configuration
func (s *MistralService) HealthCheck(ctx context.Context) error {
	if s.config.APIKey == "" {
		return fmt.Errorf("Mistral API key is not configured")
	}
	return nil
}

func (s *MistralService) wrapOCRError(err error) error {
	if interfaces.IsInputError(err) {
		return err
	}
	if isRetryableOCR(err) {
		return interfaces.NewTransientServiceError("ocr", err)
	}
	return interfaces.NewPermanentServiceError("ocr", err)
}

func normalizeMime(mimeHint string) string {
	mime := strings.ToLower(strings.TrimSpace(mimeHint))
	if mime == "" {
		return "application/pdf"
	}
	return mime
}

func joinPages(pages []ocrPage) string {
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Markdown) != "" {
			parts = append(parts, page.Markdown)
		}
	}
	return strings.Join(parts, "\n\n")
}
