// Package app wires configuration, storage, services and handlers into
// a runnable application.
package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/handlers"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/services/chat"
	"github.com/ternarybob/lector/internal/services/documents"
	"github.com/ternarybob/lector/internal/services/embeddings"
	"github.com/ternarybob/lector/internal/services/events"
	"github.com/ternarybob/lector/internal/services/index"
	"github.com/ternarybob/lector/internal/services/llm"
	"github.com/ternarybob/lector/internal/services/ocr"
	"github.com/ternarybob/lector/internal/services/pdf"
	"github.com/ternarybob/lector/internal/services/session"
	"github.com/ternarybob/lector/internal/storage"
)

// App holds the wired application graph. Construction is explicit and
// bottom-up: storage, then external services, then the orchestrator,
// then handlers.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager  interfaces.StorageManager
	LLMService      interfaces.LLMService
	OCRService      interfaces.OCRService
	DocumentService interfaces.DocumentService
	IndexService    interfaces.IndexService
	SessionManager  *session.Manager
	EventService    *events.Service
	AgentService    interfaces.AgentService

	ChatHandler     *handlers.ChatHandler
	DocumentHandler *handlers.DocumentHandler
	SessionHandler  *handlers.SessionHandler
	APIHandler      *handlers.APIHandler
	WSHandler       *handlers.WebSocketHandler
}

// New builds the application from configuration
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	llmService, err := llm.NewLLMService(config, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	ocrService, err := ocr.NewMistralService(&config.OCR, logger)
	if err != nil {
		llmService.Close()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize OCR service: %w", err)
	}

	sessionManager, err := session.NewManager(storageManager.SessionStorage(), &config.Session, logger)
	if err != nil {
		llmService.Close()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	documentService := documents.NewDocumentService(storageManager.DocumentStorage(), &config.Ingest, logger)
	embeddingService := embeddings.NewEmbeddingService(llmService, config.Gemini.EmbedDimension, logger)
	indexService := index.NewVectorIndex(storageManager.ChunkStorage(), logger)
	chunker := index.NewTextChunker(config.Ingest.ChunkSize, config.Ingest.ChunkOverlap)
	eventService := events.NewService(logger)
	transcriptService := pdf.NewTranscriptService(logger)

	assembler := chat.NewContextAssembler(documentService, embeddingService, indexService, &config.Retrieval, logger)
	agentService := chat.NewAgentService(documentService, ocrService, embeddingService, indexService,
		chunker, sessionManager, llmService, eventService, assembler, logger)

	application := &App{
		Config:          config,
		Logger:          logger,
		StorageManager:  storageManager,
		LLMService:      llmService,
		OCRService:      ocrService,
		DocumentService: documentService,
		IndexService:    indexService,
		SessionManager:  sessionManager,
		EventService:    eventService,
		AgentService:    agentService,
		ChatHandler:     handlers.NewChatHandler(agentService, logger),
		DocumentHandler: handlers.NewDocumentHandler(documentService, indexService, logger),
		SessionHandler:  handlers.NewSessionHandler(sessionManager, documentService, transcriptService, logger),
		APIHandler:      handlers.NewAPIHandler(logger),
		WSHandler:       handlers.NewWebSocketHandler(eventService, logger),
	}

	if err := sessionManager.Start(); err != nil {
		application.Close()
		return nil, fmt.Errorf("failed to start session sweep: %w", err)
	}

	logger.Info().
		Str("chat_model", llmService.ModelName()).
		Str("storage_path", config.Storage.Badger.Path).
		Msg("Application initialized")

	return application, nil
}

// Close shuts the application down in reverse construction order
func (a *App) Close() error {
	a.SessionManager.Stop()
	a.EventService.Close()

	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
		return err
	}
	return nil
}
