package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiService implements the LLMService interface using the Google
// Gemini API. It provides both embeddings and chat completions.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	limiter *rate.Limiter
	retry   *common.RetryPolicy
	timeout time.Duration
}

// Compile-time assertion
var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a new Gemini LLM service instance.
// API key resolution order: GOOGLE_API_KEY env var (applied during
// config load) then gemini.api_key in the config file.
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini service (set GOOGLE_API_KEY or gemini.api_key in config)")
	}

	if config.ChatModel == "" {
		config.ChatModel = "gemini-2.0-flash"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "gemini-embedding-001"
	}
	if config.EmbedDimension <= 0 {
		config.EmbedDimension = 768
	}

	timeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.RequestTimeout, err)
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	rps := config.RateLimit
	if rps <= 0 {
		rps = 4
	}

	service := &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   common.NewRetryPolicy(config.RetryAttempts, IsRetryable),
		timeout: timeout,
	}

	logger.Info().
		Str("chat_model", config.ChatModel).
		Str("embed_model", config.EmbedModel).
		Int("embed_dimension", config.EmbedDimension).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Embed generates an embedding vector for the given text
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, interfaces.NewInputError("text cannot be empty for embedding generation")
	}

	var embedding []float32
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var callErr error
		embedding, callErr = s.generateEmbedding(timeoutCtx, text)
		return callErr
	})
	if err != nil {
		s.logger.Error().Err(err).Int("text_length", len(text)).Msg("Embedding generation failed")
		return nil, s.wrapServiceError("embedding", err)
	}

	s.logger.Debug().
		Int("text_length", len(text)).
		Int("embedding_dim", len(embedding)).
		Msg("Embedding generation completed")

	return embedding, nil
}

func (s *GeminiService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(s.config.EmbedDimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := s.client.Models.EmbedContent(ctx, s.config.EmbedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != s.config.EmbedDimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbedDimension, len(embedding))
	}

	return embedding, nil
}

// Chat generates a completion response based on the conversation history
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
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
		s.logger.Error().Err(err).Int("message_count", len(messages)).Msg("Gemini chat completion failed")
		return "", s.wrapServiceError("generation", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(start)).
		Msg("Gemini chat completion completed")

	return response, nil
}

func (s *GeminiService) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	contents, systemText := convertMessagesToGemini(messages)

	genConfig := &genai.GenerateContentConfig{}
	if s.config.Temperature > 0 {
		temp := s.config.Temperature
		genConfig.Temperature = &temp
	}
	if systemText != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	result, err := s.client.Models.GenerateContent(ctx, s.config.ChatModel, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no response generated from Gemini API")
	}

	return text, nil
}

// convertMessagesToGemini maps conversation messages to Gemini content,
// extracting the first system message for the SystemInstruction slot.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	var systemText string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return contents, systemText
}

// HealthCheck verifies the Gemini service can handle requests
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("Gemini client is not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.generateEmbedding(healthCtx, "ping"); err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	return nil
}

// ModelName returns the chat model identifier
func (s *GeminiService) ModelName() string {
	return s.config.ChatModel
}

// Close releases client resources
func (s *GeminiService) Close() error {
	// genai client holds no persistent connections requiring cleanup
	return nil
}

// wrapServiceError classifies a failed call into the service error taxonomy
func (s *GeminiService) wrapServiceError(service string, err error) error {
	if interfaces.IsInputError(err) {
		return err
	}
	if IsRetryable(err) {
		return interfaces.NewTransientServiceError(service, err)
	}
	return interfaces.NewPermanentServiceError(service, err)
}
