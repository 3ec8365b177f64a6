package llm

import (
	"context"
	"errors"
	"strings"
)

// transientMarkers are error-text fragments that indicate a retryable
// condition: rate limiting, quota windows, or network-level failures.
var transientMarkers = []string{
	"429",
	"RESOURCE_EXHAUSTED",
	"quota",
	"rate limit",
	"rate_limit",
	"overloaded",
	"500",
	"502",
	"503",
	"504",
	"connection refused",
	"connection reset",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"EOF",
}

// IsRetryable classifies an external-call failure as transient.
// Auth failures, malformed requests, and other client errors are
// permanent and must not be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
