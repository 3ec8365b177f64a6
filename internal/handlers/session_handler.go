package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
	"github.com/ternarybob/lector/internal/services/pdf"
)

// SessionHandler handles session inspection, expiry and transcript export
type SessionHandler struct {
	sessions    interfaces.SessionManager
	documents   interfaces.DocumentService
	transcripts *pdf.TranscriptService
	logger      arbor.ILogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions interfaces.SessionManager, documents interfaces.DocumentService, transcripts *pdf.TranscriptService, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		documents:   documents,
		transcripts: transcripts,
		logger:      logger,
	}
}

// sessionView is the API shape of session state
type sessionView struct {
	ID               string                    `json:"id"`
	Phase            models.SessionPhase       `json:"phase"`
	ActiveDocumentID string                    `json:"active_document_id,omitempty"`
	Turns            []models.ConversationTurn `json:"turns"`
	CreatedAt        string                    `json:"created_at"`
	LastActivity     string                    `json:"last_activity"`
}

// SessionRoutes dispatches /api/sessions/{id} and
// /api/sessions/{id}/transcript.pdf
func (h *SessionHandler) SessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, "session id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/transcript.pdf"); ok {
		h.transcriptHandler(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		WriteError(w, http.StatusNotFound, "unknown session route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getHandler(w, r, rest)
	case http.MethodDelete:
		h.expireHandler(w, r, rest)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SessionHandler) getHandler(w http.ResponseWriter, r *http.Request, id string) {
	session, err := h.sessions.Get(id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	turns := session.Turns
	if turns == nil {
		turns = []models.ConversationTurn{}
	}
	WriteJSON(w, http.StatusOK, sessionView{
		ID:               session.ID,
		Phase:            session.Phase,
		ActiveDocumentID: session.ActiveDocumentID,
		Turns:            turns,
		CreatedAt:        session.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastActivity:     session.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *SessionHandler) expireHandler(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.sessions.Get(id); err != nil {
		WriteServiceError(w, err)
		return
	}
	if err := h.sessions.Expire(id); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "expired"})
}

func (h *SessionHandler) transcriptHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	var doc *models.Document
	if session.ActiveDocumentID != "" {
		doc, err = h.documents.Get(r.Context(), session.ActiveDocumentID)
		if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			WriteServiceError(w, err)
			return
		}
	}

	output, err := h.transcripts.Export(session, doc)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "transcript-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(output)
}
