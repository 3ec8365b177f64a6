package interfaces

import (
	"errors"
	"fmt"
)

// Sentinel errors used as control signals between components.
var (
	// ErrNotFound indicates a lookup targeted an unknown id. Callers
	// handle this internally; it is never surfaced raw to the user.
	ErrNotFound = errors.New("not found")

	// ErrEmptyIndex indicates a retrieval query before any chunk was
	// indexed for the document. Callers treat this as "no retrieval
	// context available", not a fatal error.
	ErrEmptyIndex = errors.New("retrieval index is empty")

	// ErrStateConflict indicates an invalid state machine transition,
	// e.g. a query while the session is still processing a document.
	// Surfaced as a "please wait" message, never as an internal error.
	ErrStateConflict = errors.New("operation conflicts with session state")
)

// InputError is a client-input failure: unsupported format, oversized
// upload, empty query. Surfaced immediately, never retried.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return e.Reason
}

// NewInputError creates an InputError with a formatted reason
func NewInputError(format string, args ...interface{}) *InputError {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is (or wraps) an InputError
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// ServiceError wraps a failure from an external collaborator (OCR,
// embedding, generation). Transient errors are retried up to the
// configured cap; permanent errors are surfaced immediately.
type ServiceError struct {
	Service   string // "ocr", "embedding", "generation"
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s service error (%s): %v", e.Service, kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewTransientServiceError wraps a retryable external-call failure
func NewTransientServiceError(service string, err error) *ServiceError {
	return &ServiceError{Service: service, Transient: true, Err: err}
}

// NewPermanentServiceError wraps a non-retryable external-call failure
func NewPermanentServiceError(service string, err error) *ServiceError {
	return &ServiceError{Service: service, Transient: false, Err: err}
}

// IsTransient reports whether err is a retryable service error
func IsTransient(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
