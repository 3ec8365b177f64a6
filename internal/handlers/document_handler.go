package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// DocumentHandler handles document management requests
type DocumentHandler struct {
	documents interfaces.DocumentService
	index     interfaces.IndexService
	logger    arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents interfaces.DocumentService, index interfaces.IndexService, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		index:     index,
		logger:    logger,
	}
}

// documentSummary is the list/detail view of a document without its raw bytes
type documentSummary struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	MimeType      string                `json:"mime_type"`
	SizeBytes     int64                 `json:"size_bytes"`
	PageCount     int                   `json:"page_count,omitempty"`
	Status        models.DocumentStatus `json:"status"`
	FailureReason string                `json:"failure_reason,omitempty"`
	CreatedAt     string                `json:"created_at"`
}

func summarize(doc *models.Document) documentSummary {
	return documentSummary{
		ID:            doc.ID,
		Name:          doc.Name,
		MimeType:      doc.MimeType,
		SizeBytes:     doc.SizeBytes,
		PageCount:     doc.PageCount,
		Status:        doc.Status,
		FailureReason: doc.FailureReason,
		CreatedAt:     doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// UploadHandler handles POST /api/documents: stores a document without
// binding it to a session turn.
func (h *DocumentHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read document upload")
		return
	}

	id, err := h.documents.Put(r.Context(), content, interfaces.UploadMetadata{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("name", header.Filename).Msg("Document upload rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListHandler handles GET /api/documents
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	docs, err := h.documents.List(r.Context(), limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	summaries := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, summarize(doc))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": summaries,
		"count":     len(summaries),
	})
}

// DocumentRoutes dispatches GET/DELETE /api/documents/{id}
func (h *DocumentHandler) DocumentRoutes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "unknown document route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := h.documents.Get(r.Context(), id)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, summarize(doc))
	case http.MethodDelete:
		if err := h.index.Remove(r.Context(), id); err != nil {
			WriteServiceError(w, err)
			return
		}
		if err := h.documents.Delete(r.Context(), id); err != nil {
			WriteServiceError(w, err)
			return
		}
		h.logger.Info().Str("document_id", id).Msg("Document deleted")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
