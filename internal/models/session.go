package models

import (
	"time"
)

// SessionPhase is the conversation state machine state
type SessionPhase string

const (
	// PhaseIdle means no document and no pending work
	PhaseIdle SessionPhase = "idle"
	// PhaseDocumentUploaded means bytes received but processing not started
	PhaseDocumentUploaded SessionPhase = "document_uploaded"
	// PhaseProcessing means OCR/indexing is in flight
	PhaseProcessing SessionPhase = "processing"
	// PhaseReady means the active document is indexed and queryable
	PhaseReady SessionPhase = "ready"
	// PhaseAnswering is the transient sub-state while generation runs
	PhaseAnswering SessionPhase = "answering"
	// PhaseFailed means ingestion of the active document failed.
	// The session can still converse without it or accept a new upload.
	PhaseFailed SessionPhase = "failed"
)

// TurnRole identifies the author of a conversation turn
type TurnRole string

const (
	TurnRoleUser  TurnRole = "user"
	TurnRoleAgent TurnRole = "agent"
)

// ConversationTurn is one immutable entry in a session's history.
// ChunkIDs records which retrieved chunks backed an agent answer (provenance).
type ConversationTurn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	ChunkIDs  []string  `json:"chunk_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the unit of conversational continuity for one user.
// It exclusively owns its turn history and holds a non-owning reference
// to at most one active document. Mutated only by the session manager,
// one turn at a time.
type SessionState struct {
	ID    string       `json:"id"` // session_{id}
	Phase SessionPhase `json:"phase"`

	// ActiveDocumentID references the current document, empty when none.
	// Documents outlive sessions; expiry never deletes them.
	ActiveDocumentID string `json:"active_document_id,omitempty"`

	Turns []ConversationTurn `json:"turns"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// RecentTurns returns up to n most recent turns in chronological order
func (s *SessionState) RecentTurns(n int) []ConversationTurn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// HasActiveDocument reports whether the session references a document
func (s *SessionState) HasActiveDocument() bool {
	return s.ActiveDocumentID != ""
}
