package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing
const maxMultipartMemory = 8 << 20

// ChatHandler handles conversational turn requests
type ChatHandler struct {
	agent  interfaces.AgentService
	logger arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(agent interfaces.AgentService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		agent:  agent,
		logger: logger,
	}
}

// TurnHandler handles POST /api/chat. JSON bodies carry a query-only
// turn; multipart bodies carry an optional document upload alongside
// the query.
func (h *ChatHandler) TurnHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, err := h.parseTurnRequest(r)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Invalid turn request")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Str("session_id", req.SessionID).
		Int("query_length", len(req.Query)).
		Int("document_bytes", len(req.Document)).
		Msg("Processing turn")

	response, err := h.agent.Turn(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Turn failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, response)
}

// HealthHandler handles GET /api/chat/health
func (h *ChatHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if err := h.agent.HealthCheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChatHandler) parseTurnRequest(r *http.Request) (*interfaces.TurnRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.parseMultipartTurn(r)
	}

	var req interfaces.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, interfaces.NewInputError("invalid request body: %v", err)
	}

	if req.DocumentB64 != "" {
		content, err := base64.StdEncoding.DecodeString(req.DocumentB64)
		if err != nil {
			return nil, interfaces.NewInputError("invalid base64 document: %v", err)
		}
		req.Document = content
		req.DocumentB64 = ""
	}
	return &req, nil
}

func (h *ChatHandler) parseMultipartTurn(r *http.Request) (*interfaces.TurnRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, interfaces.NewInputError("invalid multipart body: %v", err)
	}

	req := &interfaces.TurnRequest{
		SessionID: r.FormValue("session_id"),
		Query:     r.FormValue("query"),
	}

	file, header, err := r.FormFile("document")
	if err == http.ErrMissingFile {
		return req, nil
	}
	if err != nil {
		return nil, interfaces.NewInputError("invalid document upload: %v", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, interfaces.NewInputError("failed to read document upload: %v", err)
	}

	req.Document = content
	req.DocumentName = header.Filename
	req.DocumentMime = header.Header.Get("Content-Type")
	return req, nil
}
