package interfaces

import (
	"time"
)

// EventType identifies a document/session lifecycle event
type EventType string

const (
	EventDocumentUploaded   EventType = "document_uploaded"
	EventDocumentProcessing EventType = "document_processing"
	EventDocumentReady      EventType = "document_ready"
	EventDocumentFailed     EventType = "document_failed"
	EventTurnCompleted      EventType = "turn_completed"
)

// Event is a processing status notification pushed to connected clients
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventService fans processing events out to subscribers (WebSocket
// clients). Publish never blocks the orchestration loop: slow
// subscribers drop events rather than stalling a turn.
type EventService interface {
	Publish(event Event)
	Subscribe() (<-chan Event, func())
}
