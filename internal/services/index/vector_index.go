package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// VectorIndex is an in-memory cosine-similarity index over chunk
// embeddings, persisted through chunk storage so indexes survive a
// restart. Queries against a document lazily reload its chunks from
// storage when the cache is cold.
type VectorIndex struct {
	chunkStorage interfaces.ChunkStorage
	logger       arbor.ILogger

	mu   sync.RWMutex
	docs map[string][]*models.Chunk
}

// Compile-time assertion
var _ interfaces.IndexService = (*VectorIndex)(nil)

// NewVectorIndex creates a new vector index backed by chunk storage
func NewVectorIndex(chunkStorage interfaces.ChunkStorage, logger arbor.ILogger) *VectorIndex {
	return &VectorIndex{
		chunkStorage: chunkStorage,
		logger:       logger,
		docs:         make(map[string][]*models.Chunk),
	}
}

// Index stores the chunks for a document and replaces any previous set.
// Every chunk must carry an embedding.
func (v *VectorIndex) Index(ctx context.Context, documentID string, chunks []*models.Chunk) error {
	if documentID == "" {
		return interfaces.NewInputError("document ID is required for indexing")
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return interfaces.NewInputError("chunk %s has no embedding", chunk.ID)
		}
	}

	if err := v.chunkStorage.SaveChunks(documentID, chunks); err != nil {
		return fmt.Errorf("failed to persist chunks for document %s: %w", documentID, err)
	}

	v.mu.Lock()
	v.docs[documentID] = chunks
	v.mu.Unlock()

	v.logger.Info().
		Str("document_id", documentID).
		Int("chunks", len(chunks)).
		Msg("Document indexed")

	return nil
}

// Query returns the top-k chunks of a document ranked by cosine
// similarity to the query embedding, highest first. Ties break toward
// the chunk earlier in the document. Fewer than k chunks returns them
// all; a document with no indexed chunks returns ErrEmptyIndex.
func (v *VectorIndex) Query(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, interfaces.NewInputError("k must be positive")
	}
	if len(queryEmbedding) == 0 {
		return nil, interfaces.NewInputError("query embedding is empty")
	}

	chunks, err := v.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, interfaces.ErrEmptyIndex)
	}

	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		scored = append(scored, models.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(queryEmbedding, chunk.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Position < scored[j].Chunk.Position
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Remove drops a document's chunks from the index and from storage
func (v *VectorIndex) Remove(ctx context.Context, documentID string) error {
	if err := v.chunkStorage.DeleteChunks(documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}

	v.mu.Lock()
	delete(v.docs, documentID)
	v.mu.Unlock()

	return nil
}

func (v *VectorIndex) load(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	v.mu.RLock()
	chunks, ok := v.docs[documentID]
	v.mu.RUnlock()
	if ok {
		return chunks, nil
	}

	stored, err := v.chunkStorage.GetChunks(documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for document %s: %w", documentID, err)
	}

	v.mu.Lock()
	v.docs[documentID] = stored
	v.mu.Unlock()

	if len(stored) > 0 {
		v.logger.Debug().
			Str("document_id", documentID).
			Int("chunks", len(stored)).
			Msg("Index reloaded from storage")
	}

	return stored, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched dimensions or a zero vector score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
