package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"golang.org/x/time/rate"
)

// ClaudeService implements the LLMService interface using the Anthropic
// Claude API. Claude handles chat completions only; embedding requests
// are delegated to a companion embedder (Gemini) supplied at build time.
type ClaudeService struct {
	config   *common.ClaudeConfig
	logger   arbor.ILogger
	client   anthropic.Client
	embedder interfaces.LLMService
	limiter  *rate.Limiter
	retry    *common.RetryPolicy
	timeout  time.Duration
}

// Compile-time assertion
var _ interfaces.LLMService = (*ClaudeService)(nil)

// NewClaudeService creates a new Claude LLM service instance. The
// embedder carries embedding calls since the Anthropic API does not
// expose an embeddings endpoint.
func NewClaudeService(config *common.ClaudeConfig, embedder interfaces.LLMService, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude service (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}
	if embedder == nil {
		return nil, fmt.Errorf("Claude service requires an embedding provider")
	}

	if config.Model == "" {
		config.Model = "claude-3-5-haiku-20241022"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}

	timeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.RequestTimeout, err)
	}

	rps := config.RateLimit
	if rps <= 0 {
		rps = 4
	}

	service := &ClaudeService{
		config:   config,
		logger:   logger,
		client:   anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		retry:    common.NewRetryPolicy(config.RetryAttempts, IsRetryable),
		timeout:  timeout,
	}

	logger.Info().
		Str("model", config.Model).
		Int("max_tokens", config.MaxTokens).
		Dur("timeout", timeout).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Embed delegates to the companion embedding provider
func (s *ClaudeService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

// Chat generates a completion response based on the conversation history
func (s *ClaudeService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", interfaces.NewInputError("messages cannot be empty for chat completion")
	}

	start := time.Now()
	var response string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var callErr error
		response, callErr = s.generateCompletion(timeoutCtx, messages)
		return callErr
	})
	if err != nil {
		s.logger.Error().Err(err).Int("message_count", len(messages)).Msg("Claude chat completion failed")
		return "", s.wrapServiceError(err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(start)).
		Msg("Claude chat completion completed")

	return response, nil
}

func (s *ClaudeService) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	converted, systemText := convertMessagesToClaude(messages)
	if len(converted) == 0 {
		return "", interfaces.NewInputError("conversation contains no user or assistant messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.config.MaxTokens),
		Messages:  converted,
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	message, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	response := builder.String()
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	return response, nil
}

// convertMessagesToClaude maps conversation messages to Anthropic message
// params, extracting the first system message for the system prompt slot.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string) {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return converted, systemText
}

// HealthCheck verifies the Claude service can handle requests
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.generateCompletion(healthCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	})
	if err != nil {
		return fmt.Errorf("Claude health check failed: %w", err)
	}
	return nil
}

// ModelName returns the chat model identifier
func (s *ClaudeService) ModelName() string {
	return s.config.Model
}

// Close releases client resources
func (s *ClaudeService) Close() error {
	return s.embedder.Close()
}

func (s *ClaudeService) wrapServiceError(err error) error {
	if interfaces.IsInputError(err) {
		return err
	}
	if IsRetryable(err) {
		return interfaces.NewTransientServiceError("generation", err)
	}
	return interfaces.NewPermanentServiceError("generation", err)
}
