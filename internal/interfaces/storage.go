package interfaces

import (
	"github.com/ternarybob/lector/internal/models"
)

// DocumentStorage persists documents durably across process restarts.
// Writes to a given document happen exactly once per status transition;
// documents are read-mostly after reaching ready.
type DocumentStorage interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListDocuments(limit int) ([]*models.Document, error)
	DeleteDocument(id string) error
}

// ChunkStorage persists a ready document's chunk set.
// Replace semantics: saving chunks for a document removes any prior set,
// which keeps MarkReady idempotent.
type ChunkStorage interface {
	SaveChunks(documentID string, chunks []*models.Chunk) error
	GetChunks(documentID string) ([]*models.Chunk, error)
	DeleteChunks(documentID string) error
}

// SessionStorage persists session state between turns
type SessionStorage interface {
	SaveSession(session *models.SessionState) error
	GetSession(id string) (*models.SessionState, error)
	ListSessions() ([]*models.SessionState, error)
	DeleteSession(id string) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	DocumentStorage() DocumentStorage
	ChunkStorage() ChunkStorage
	SessionStorage() SessionStorage
	Close() error
}
