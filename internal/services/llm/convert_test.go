package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/lector/internal/interfaces"
	"google.golang.org/genai"
)

func TestConvertMessagesToGemini(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "You answer from documents only."},
		{Role: "user", Content: "What is the refund policy?"},
		{Role: "assistant", Content: "Refunds are issued within 30 days."},
		{Role: "user", Content: "And after 30 days?"},
	}

	contents, system := convertMessagesToGemini(messages)

	assert.Equal(t, "You answer from documents only.", system)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
}

func TestConvertMessagesToGemini_NoSystem(t *testing.T) {
	contents, system := convertMessagesToGemini([]interfaces.Message{
		{Role: "user", Content: "hello"},
	})

	assert.Empty(t, system)
	assert.Len(t, contents, 1)
}

func TestConvertMessagesToClaude(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "Answer only from the supplied context."},
		{Role: "user", Content: "Summarize section 2."},
		{Role: "assistant", Content: "Section 2 covers billing."},
	}

	converted, system := convertMessagesToClaude(messages)

	assert.Equal(t, "Answer only from the supplied context.", system)
	require.Len(t, converted, 2)
	assert.Equal(t, "user", string(converted[0].Role))
	assert.Equal(t, "assistant", string(converted[1].Role))
}
