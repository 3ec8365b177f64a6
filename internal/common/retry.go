package common

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy defines bounded retry behavior for external calls.
// Transient failures (network, rate limit) are retried with exponential
// backoff up to MaxAttempts; anything the Retryable predicate rejects
// fails immediately.
type RetryPolicy struct {
	// MaxAttempts is the total call cap including the first attempt
	MaxAttempts int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff on each retry
	BackoffMultiplier float64

	// Retryable decides whether an error is worth retrying.
	// A nil predicate retries nothing.
	Retryable func(error) bool
}

// Default retry constants for hosted API calls
const (
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// NewRetryPolicy returns a policy with the given attempt cap and
// retryable predicate, using default backoff timing. An attempts value
// below 1 falls back to the default cap.
func NewRetryPolicy(attempts int, retryable func(error) bool) *RetryPolicy {
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	return &RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Retryable:         retryable,
	}
}

// Backoff computes the wait before retry number attempt (0-based)
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
	}
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Do runs fn under the policy. The last error is returned once the
// attempt cap is reached or a non-retryable error occurs. Context
// cancellation aborts between attempts.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Backoff(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}
