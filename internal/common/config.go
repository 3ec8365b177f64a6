package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Ingest      IngestConfig    `toml:"ingest"`
	Retrieval   RetrievalConfig `toml:"retrieval"`
	Session     SessionConfig   `toml:"session"`
	OCR         OCRConfig       `toml:"ocr"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// IngestConfig controls document acceptance and chunking
type IngestConfig struct {
	MaxUploadSize int64 `toml:"max_upload_size" validate:"gt=0"` // Upload byte ceiling
	ChunkSize     int   `toml:"chunk_size" validate:"gt=0"`      // Target chunk length in runes
	ChunkOverlap  int   `toml:"chunk_overlap" validate:"gte=0"`  // Overlap length in runes
}

// RetrievalConfig controls context assembly
type RetrievalConfig struct {
	TopK          int `toml:"retrieval_k" validate:"gt=0"`    // Chunks retrieved per query
	ContextBudget int `toml:"context_budget" validate:"gt=0"` // Max assembled context length in runes
	RecentTurns   int `toml:"recent_turns" validate:"gt=0"`   // Conversation turns carried verbatim
}

// SessionConfig controls session lifetime
type SessionConfig struct {
	IdleTimeout   string `toml:"idle_timeout"`   // Duration string, e.g. "30m"
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for the expiry sweep
}

// OCRConfig contains the hosted OCR gateway configuration
type OCRConfig struct {
	APIKey         string  `toml:"api_key"`         // Mistral API key for OCR operations
	Model          string  `toml:"model"`           // OCR model (default: "mistral-ocr-latest")
	Endpoint       string  `toml:"endpoint"`        // API endpoint override, empty for default
	RequestTimeout string  `toml:"request_timeout"` // Per-call timeout as duration string
	RetryAttempts  int     `toml:"retry_attempts"`  // Cap on attempts for transient failures
	RateLimit      float64 `toml:"rate_limit"`      // Requests per second
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`         // Google API key
	ChatModel      string  `toml:"chat_model"`      // Model for completions (default: "gemini-2.0-flash")
	EmbedModel     string  `toml:"embed_model"`     // Model for embeddings (default: "gemini-embedding-001")
	EmbedDimension int     `toml:"embed_dimension"` // Embedding vector dimension (default: 768)
	Temperature    float32 `toml:"temperature"`     // Completion temperature
	RequestTimeout string  `toml:"request_timeout"` // Per-call timeout as duration string
	RetryAttempts  int     `toml:"retry_attempts"`  // Cap on attempts for transient failures
	RateLimit      float64 `toml:"rate_limit"`      // Requests per second
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey         string  `toml:"api_key"`         // Anthropic API key
	Model          string  `toml:"model"`           // Model for completions (default: "claude-3-5-haiku-20241022")
	MaxTokens      int     `toml:"max_tokens"`      // Maximum tokens in response
	Temperature    float32 `toml:"temperature"`     // Completion temperature
	RequestTimeout string  `toml:"request_timeout"` // Per-call timeout as duration string
	RetryAttempts  int     `toml:"retry_attempts"`  // Cap on attempts for transient failures
	RateLimit      float64 `toml:"rate_limit"`      // Requests per second
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API for chat (embeddings stay on Gemini)
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the chat provider
type LLMConfig struct {
	ChatProvider LLMProvider `toml:"chat_provider" validate:"oneof=gemini claude"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings need to appear in lector.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Ingest: IngestConfig{
			MaxUploadSize: 50 * 1024 * 1024, // Mistral OCR rejects uploads above 50MB
			ChunkSize:     1000,
			ChunkOverlap:  200,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			ContextBudget: 6000,
			RecentTurns:   6,
		},
		Session: SessionConfig{
			IdleTimeout:   "30m",
			SweepSchedule: "@every 1m",
		},
		OCR: OCRConfig{
			Model:          "mistral-ocr-latest",
			RequestTimeout: "2m",
			RetryAttempts:  3,
			RateLimit:      2,
		},
		Gemini: GeminiConfig{
			ChatModel:      "gemini-2.0-flash",
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
			Temperature:    0.7,
			RequestTimeout: "1m",
			RetryAttempts:  3,
			RateLimit:      4,
		},
		Claude: ClaudeConfig{
			Model:          "claude-3-5-haiku-20241022",
			MaxTokens:      4096,
			Temperature:    0.7,
			RequestTimeout: "2m",
			RetryAttempts:  3,
			RateLimit:      1,
		},
		LLM: LLMConfig{
			ChatProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path loads defaults and env overrides only.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks config invariants via struct tags plus cross-field rules
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Ingest.ChunkOverlap >= config.Ingest.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			config.Ingest.ChunkOverlap, config.Ingest.ChunkSize)
	}

	if _, err := time.ParseDuration(config.Session.IdleTimeout); err != nil {
		return fmt.Errorf("invalid session idle_timeout %q: %w", config.Session.IdleTimeout, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LECTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("LECTOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LECTOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("LECTOR_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("LECTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// API keys prefer dedicated env vars over config file values
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		config.OCR.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}

	if provider := os.Getenv("LECTOR_CHAT_PROVIDER"); provider != "" {
		config.LLM.ChatProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
