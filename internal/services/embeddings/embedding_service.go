package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
)

// EmbeddingService produces embedding vectors for document chunks and
// queries through the configured LLM provider.
type EmbeddingService struct {
	llm       interfaces.LLMService
	dimension int
	logger    arbor.ILogger
}

// Compile-time assertion
var _ interfaces.EmbeddingService = (*EmbeddingService)(nil)

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(llm interfaces.LLMService, dimension int, logger arbor.ILogger) *EmbeddingService {
	return &EmbeddingService{
		llm:       llm,
		dimension: dimension,
		logger:    logger,
	}
}

// GenerateEmbedding generates an embedding vector for document content
func (s *EmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, interfaces.NewInputError("text cannot be empty for embedding generation")
	}

	embedding, err := s.llm.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	return embedding, nil
}

// GenerateQueryEmbedding generates an embedding vector for a search query.
// Queries and documents share one embedding space, so this is the same
// call; keeping it separate leaves room for task-type hints later.
func (s *EmbeddingService) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return s.GenerateEmbedding(ctx, query)
}

// Dimension returns the embedding vector dimension
func (s *EmbeddingService) Dimension() int {
	return s.dimension
}
