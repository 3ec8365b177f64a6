package interfaces

import (
	"context"

	"github.com/ternarybob/lector/internal/models"
)

// OCRService converts document bytes into normalized text segments.
// The extraction itself is a hosted black-box service; this interface
// is all the orchestration core depends on. Failures are reported as
// ServiceError with Service "ocr"; transient failures (network, rate
// limit) are retryable, permanent ones (auth, malformed response) are
// not.
type OCRService interface {
	// Extract returns the document's text as ordered segments with
	// optional structural tags (heading/paragraph/list-item).
	Extract(ctx context.Context, content []byte, mimeHint string) ([]models.Segment, error)

	// HealthCheck verifies the gateway is reachable.
	HealthCheck(ctx context.Context) error
}
