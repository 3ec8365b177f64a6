package interfaces

import (
	"context"

	"github.com/ternarybob/lector/internal/models"
)

// Chunker splits extracted text into overlapping retrieval chunks
type Chunker interface {
	// Chunk partitions text into chunks of the configured target size
	// and overlap, preferring paragraph and sentence boundaries.
	// Chunk order matches source order.
	Chunk(documentID, text string) []*models.Chunk
}

// IndexService maintains per-document chunked, embedded text and
// answers nearest-neighbor queries.
type IndexService interface {
	// Index embeds and stores a ready document's chunks, replacing any
	// prior set for that document.
	Index(ctx context.Context, documentID string, chunks []*models.Chunk) error

	// Query returns the top-k chunks by descending similarity score,
	// ties broken by ascending chunk position. Fails with ErrEmptyIndex
	// when nothing has been indexed for the document.
	Query(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]models.ScoredChunk, error)

	// Remove drops a document's chunks from the index and storage.
	Remove(ctx context.Context, documentID string) error
}
