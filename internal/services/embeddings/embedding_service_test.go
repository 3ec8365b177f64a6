package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
)

type stubLLM struct {
	embedCalls int
	vector     []float32
	err        error
}

func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	s.embedCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return "", nil
}

func (s *stubLLM) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLLM) ModelName() string                     { return "stub" }
func (s *stubLLM) Close() error                          { return nil }

func TestGenerateEmbedding(t *testing.T) {
	stub := &stubLLM{vector: []float32{0.1, 0.2, 0.3}}
	service := NewEmbeddingService(stub, 3, arbor.NewLogger())

	embedding, err := service.GenerateEmbedding(context.Background(), "some document text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding)
	assert.Equal(t, 1, stub.embedCalls)
}

func TestGenerateEmbedding_EmptyText(t *testing.T) {
	stub := &stubLLM{vector: []float32{0.1}}
	service := NewEmbeddingService(stub, 1, arbor.NewLogger())

	_, err := service.GenerateEmbedding(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, interfaces.IsInputError(err))
	assert.Equal(t, 0, stub.embedCalls)
}

func TestGenerateQueryEmbedding(t *testing.T) {
	stub := &stubLLM{vector: []float32{1, 0}}
	service := NewEmbeddingService(stub, 2, arbor.NewLogger())

	embedding, err := service.GenerateQueryEmbedding(context.Background(), "refund policy?")
	require.NoError(t, err)
	assert.Len(t, embedding, 2)
	assert.Equal(t, 2, service.Dimension())
}
