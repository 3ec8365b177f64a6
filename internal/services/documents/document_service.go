// Package documents owns the document lifecycle: upload validation,
// durable storage, and status transitions through extraction.
package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// supportedMimeTypes lists the formats the OCR gateway accepts
var supportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/tiff":      true,
}

// DocumentService implements interfaces.DocumentService over Badger
// storage with PDF structure validation on upload.
type DocumentService struct {
	documentStorage interfaces.DocumentStorage
	maxUploadSize   int64
	logger          arbor.ILogger
}

// Compile-time assertion
var _ interfaces.DocumentService = (*DocumentService)(nil)

// NewDocumentService creates a new document service
func NewDocumentService(documentStorage interfaces.DocumentStorage, config *common.IngestConfig, logger arbor.ILogger) *DocumentService {
	return &DocumentService{
		documentStorage: documentStorage,
		maxUploadSize:   config.MaxUploadSize,
		logger:          logger,
	}
}

// Put validates and stores an uploaded document in unprocessed state.
// Oversized or unsupported uploads are rejected before anything is
// written. PDF uploads must parse; the page count is recorded.
func (s *DocumentService) Put(ctx context.Context, content []byte, meta interfaces.UploadMetadata) (string, error) {
	if len(content) == 0 {
		return "", interfaces.NewInputError("document content is empty")
	}
	if s.maxUploadSize > 0 && int64(len(content)) > s.maxUploadSize {
		return "", interfaces.NewInputError("document size %d exceeds limit of %d bytes", len(content), s.maxUploadSize)
	}

	mimeType := strings.ToLower(strings.TrimSpace(meta.MimeType))
	if mimeType == "" {
		mimeType = detectMimeType(content)
	}
	if !supportedMimeTypes[mimeType] {
		return "", interfaces.NewInputError("unsupported document format: %s", mimeType)
	}

	pageCount := 0
	if mimeType == "application/pdf" {
		count, err := validatePDF(content)
		if err != nil {
			return "", interfaces.NewInputError("invalid PDF document: %v", err)
		}
		pageCount = count
	}

	now := time.Now()
	doc := &models.Document{
		ID:        common.NewDocumentID(),
		Name:      meta.Name,
		MimeType:  mimeType,
		Content:   content,
		SizeBytes: int64(len(content)),
		PageCount: pageCount,
		Status:    models.DocumentStatusUnprocessed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.documentStorage.SaveDocument(doc); err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("name", doc.Name).
		Str("mime_type", mimeType).
		Int64("size_bytes", doc.SizeBytes).
		Int("pages", pageCount).
		Msg("Document stored")

	return doc.ID, nil
}

// Get returns a stored document
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.documentStorage.GetDocument(id)
}

// MarkProcessing flips a document to processing before extraction starts
func (s *DocumentService) MarkProcessing(ctx context.Context, id string) error {
	doc, err := s.documentStorage.GetDocument(id)
	if err != nil {
		return err
	}

	doc.Status = models.DocumentStatusProcessing
	doc.FailureReason = ""
	if err := s.documentStorage.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

// MarkReady stores the extracted segments and flips status to ready.
// Re-marking an already-ready document with identical text is a no-op,
// so a retried ingestion cannot duplicate anything downstream.
func (s *DocumentService) MarkReady(ctx context.Context, id string, segments []models.Segment) error {
	if len(segments) == 0 {
		return interfaces.NewInputError("cannot mark document %s ready with no extracted text", id)
	}

	doc, err := s.documentStorage.GetDocument(id)
	if err != nil {
		return err
	}

	if doc.Status == models.DocumentStatusReady && segmentsEqual(doc.Segments, segments) {
		return nil
	}

	doc.Segments = segments
	doc.Status = models.DocumentStatusReady
	doc.FailureReason = ""
	if err := s.documentStorage.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}

	s.logger.Info().
		Str("document_id", id).
		Int("segments", len(segments)).
		Msg("Document ready")

	return nil
}

// MarkFailed records a terminal extraction failure for the document
func (s *DocumentService) MarkFailed(ctx context.Context, id string, reason string) error {
	doc, err := s.documentStorage.GetDocument(id)
	if err != nil {
		return err
	}

	doc.Status = models.DocumentStatusFailed
	doc.FailureReason = reason
	if err := s.documentStorage.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}

	s.logger.Warn().
		Str("document_id", id).
		Str("reason", reason).
		Msg("Document failed")

	return nil
}

// List returns stored documents, newest first
func (s *DocumentService) List(ctx context.Context, limit int) ([]*models.Document, error) {
	return s.documentStorage.ListDocuments(limit)
}

// Delete removes a document. The caller is responsible for removing any
// index entries that reference it.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	return s.documentStorage.DeleteDocument(id)
}

// validatePDF parses the PDF structure and returns its page count
func validatePDF(content []byte) (int, error) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// detectMimeType sniffs the format from magic bytes when the upload
// carries no content type.
func detectMimeType(content []byte) string {
	switch {
	case bytes.HasPrefix(content, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(content, []byte{0x89, 0x50, 0x4e, 0x47}):
		return "image/png"
	case bytes.HasPrefix(content, []byte{0xff, 0xd8, 0xff}):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func segmentsEqual(a, b []models.Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
