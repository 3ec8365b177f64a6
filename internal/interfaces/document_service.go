package interfaces

import (
	"context"

	"github.com/ternarybob/lector/internal/models"
)

// UploadMetadata describes an incoming document upload
type UploadMetadata struct {
	Name     string
	MimeType string
}

// DocumentService owns document lifecycle: acceptance, status
// transitions, and retrieval. Put validates format and size limits;
// MarkReady stores extracted text and is idempotent for identical
// segment content.
type DocumentService interface {
	// Put validates and stores an uploaded document, returning its id.
	// Fails with InputError for oversized or unsupported uploads.
	Put(ctx context.Context, content []byte, meta UploadMetadata) (string, error)

	// Get returns a document by id, ErrNotFound when unknown.
	Get(ctx context.Context, id string) (*models.Document, error)

	// MarkProcessing flips the document to processing before OCR starts.
	MarkProcessing(ctx context.Context, id string) error

	// MarkReady stores extracted segments and flips status to ready.
	MarkReady(ctx context.Context, id string, segments []models.Segment) error

	// MarkFailed records an ingestion failure.
	MarkFailed(ctx context.Context, id string, reason string) error

	// List returns stored documents, most recent first.
	List(ctx context.Context, limit int) ([]*models.Document, error)

	// Delete removes a document and its chunks.
	Delete(ctx context.Context, id string) error
}
