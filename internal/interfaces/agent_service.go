package interfaces

import (
	"context"

	"github.com/ternarybob/lector/internal/models"
)

// TurnRequest is one conversational turn: an optional new document
// plus a user query. Either field may be empty, not both.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`

	// Optional new document to ingest before answering. Multipart
	// uploads fill Document directly; JSON bodies carry it base64
	// encoded in DocumentB64.
	Document     []byte `json:"-"`
	DocumentB64  string `json:"document_b64,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	DocumentMime string `json:"document_mime,omitempty"`
}

// TurnResponse is the outcome of a turn
type TurnResponse struct {
	Answer     string              `json:"answer"`
	Phase      models.SessionPhase `json:"phase"`
	DocumentID string              `json:"document_id,omitempty"`

	// UsedChunkIDs records retrieval provenance for the answer
	UsedChunkIDs []string `json:"used_chunks,omitempty"`

	// ErrorMessage carries a non-fatal failure the turn survived,
	// such as ingestion failing before a context-free answer.
	ErrorMessage string `json:"error,omitempty"`
}

// AgentService drives the orchestration loop for one turn: state
// machine advance, document ingestion, retrieval-augmented context
// assembly, and response generation.
type AgentService interface {
	// Turn executes one session turn. A turn arriving while the
	// session is processing or answering fails with ErrStateConflict
	// without mutating session state.
	Turn(ctx context.Context, req *TurnRequest) (*TurnResponse, error)

	// HealthCheck verifies downstream services are operational.
	HealthCheck(ctx context.Context) error
}

// SessionManager owns session state lifetime between turns
type SessionManager interface {
	// GetOrCreate returns the session, creating it on first use.
	GetOrCreate(sessionID string) (*models.SessionState, error)

	// Get returns an existing session, ErrNotFound when unknown.
	Get(sessionID string) (*models.SessionState, error)

	// RecordTurn appends a turn and persists the session.
	RecordTurn(sessionID string, turn models.ConversationTurn) error

	// Save persists mutated session state.
	Save(session *models.SessionState) error

	// Acquire reserves the session for one turn. A second caller
	// before Release fails with ErrStateConflict.
	Acquire(sessionID string) error

	// Release frees a session reserved by Acquire.
	Release(sessionID string)

	// Expire releases a session's state. Documents are retained.
	Expire(sessionID string) error
}
