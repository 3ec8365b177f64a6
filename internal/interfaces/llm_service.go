package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the interface for language model operations:
// embedding generation and chat completions. Implementations call
// hosted APIs (Gemini, Claude); the core never depends on a concrete
// provider. Failures are reported as ServiceError with the transient
// flag set for network/rate-limit conditions.
type LLMService interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Chat generates a completion for the conversation history.
	// The messages slice carries the full context in chronological
	// order including system instructions.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the service can handle requests.
	HealthCheck(ctx context.Context) error

	// ModelName returns the chat model identifier for reporting.
	ModelName() string

	// Close releases client resources.
	Close() error
}

// EmbeddingService generates vector embeddings with retry handling
// layered over the raw LLM service.
type EmbeddingService interface {
	// GenerateEmbedding embeds raw text (used for document chunks)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateQueryEmbedding embeds a retrieval query
	GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error)

	// Dimension returns the embedding vector dimension
	Dimension() int
}
