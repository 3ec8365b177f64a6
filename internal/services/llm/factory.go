package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
)

// NewLLMService creates the configured LLM service. Gemini always backs
// embeddings; the chat provider is selected via llm.chat_provider, with
// Claude layered over the Gemini embedder when chosen.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	gemini, err := NewGeminiService(&config.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini service: %w", err)
	}

	switch config.LLM.ChatProvider {
	case common.LLMProviderGemini, "":
		return gemini, nil
	case common.LLMProviderClaude:
		claude, err := NewClaudeService(&config.Claude, gemini, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude service: %w", err)
		}
		return claude, nil
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", config.LLM.ChatProvider)
	}
}
