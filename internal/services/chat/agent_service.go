package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
	"github.com/ternarybob/lector/internal/services/session"
)

// AgentService executes conversational turns. Each turn advances the
// session state machine, ingests a new document when one arrives,
// assembles retrieval context and generates the answer. The three
// blocking external calls (OCR, embedding, generation) each carry their
// own timeout and retry policy inside their service.
type AgentService struct {
	documents interfaces.DocumentService
	ocr       interfaces.OCRService
	embedding interfaces.EmbeddingService
	index     interfaces.IndexService
	chunker   interfaces.Chunker
	sessions  interfaces.SessionManager
	llm       interfaces.LLMService
	events    interfaces.EventService
	assembler *ContextAssembler
	logger    arbor.ILogger
}

// Compile-time assertion
var _ interfaces.AgentService = (*AgentService)(nil)

// NewAgentService creates the turn orchestrator
func NewAgentService(
	documents interfaces.DocumentService,
	ocr interfaces.OCRService,
	embedding interfaces.EmbeddingService,
	index interfaces.IndexService,
	chunker interfaces.Chunker,
	sessions interfaces.SessionManager,
	llm interfaces.LLMService,
	events interfaces.EventService,
	assembler *ContextAssembler,
	logger arbor.ILogger,
) *AgentService {
	return &AgentService{
		documents: documents,
		ocr:       ocr,
		embedding: embedding,
		index:     index,
		chunker:   chunker,
		sessions:  sessions,
		llm:       llm,
		events:    events,
		assembler: assembler,
		logger:    logger,
	}
}

// Turn executes one session turn: optional document ingestion followed
// by answering. A turn overlapping another on the same session fails
// with ErrStateConflict and leaves session state untouched.
func (s *AgentService) Turn(ctx context.Context, req *interfaces.TurnRequest) (*interfaces.TurnResponse, error) {
	if len(req.Document) == 0 && strings.TrimSpace(req.Query) == "" {
		return nil, interfaces.NewInputError("turn requires a document, a query, or both")
	}

	sess, err := s.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Acquire(sess.ID); err != nil {
		return nil, err
	}
	defer s.sessions.Release(sess.ID)

	response := &interfaces.TurnResponse{}

	if len(req.Document) > 0 {
		if err := s.ingest(ctx, sess, req, response); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(req.Query) == "" {
		response.Phase = sess.Phase
		response.DocumentID = sess.ActiveDocumentID
		return response, nil
	}

	if err := s.answer(ctx, sess, req.Query, response); err != nil {
		return nil, err
	}

	response.Phase = sess.Phase
	response.DocumentID = sess.ActiveDocumentID
	return response, nil
}

// ingest runs upload through indexing. An ingestion failure marks the
// document failed and moves the session to the failed phase, but is not
// fatal to the turn: a query on the same turn still gets a context-free
// answer, with the failure surfaced on the response.
func (s *AgentService) ingest(ctx context.Context, sess *models.SessionState, req *interfaces.TurnRequest, response *interfaces.TurnResponse) error {
	// Validate the upload transition before touching anything
	uploadedPhase, err := session.Transition(sess.Phase, session.EventUpload)
	if err != nil {
		return err
	}

	docID, err := s.documents.Put(ctx, req.Document, interfaces.UploadMetadata{
		Name:     req.DocumentName,
		MimeType: req.DocumentMime,
	})
	if err != nil {
		return err
	}

	sess.Phase = uploadedPhase
	sess.ActiveDocumentID = docID
	if err := s.sessions.Save(sess); err != nil {
		return err
	}
	s.events.Publish(interfaces.Event{
		Type:       interfaces.EventDocumentUploaded,
		SessionID:  sess.ID,
		DocumentID: docID,
		Message:    req.DocumentName,
	})
	response.DocumentID = docID

	if err := s.advance(sess, session.EventIngestStart); err != nil {
		return err
	}
	if err := s.documents.MarkProcessing(ctx, docID); err != nil {
		return err
	}
	s.events.Publish(interfaces.Event{
		Type:       interfaces.EventDocumentProcessing,
		SessionID:  sess.ID,
		DocumentID: docID,
	})

	if err := s.extractAndIndex(ctx, docID); err != nil {
		reason := err.Error()
		if markErr := s.documents.MarkFailed(ctx, docID, reason); markErr != nil {
			s.logger.Error().Err(markErr).Str("document_id", docID).Msg("Failed to record document failure")
		}
		if advErr := s.advance(sess, session.EventIngestFail); advErr != nil {
			return advErr
		}
		s.events.Publish(interfaces.Event{
			Type:       interfaces.EventDocumentFailed,
			SessionID:  sess.ID,
			DocumentID: docID,
			Message:    reason,
		})
		response.ErrorMessage = fmt.Sprintf("document processing failed: %s", reason)

		s.logger.Warn().
			Str("session_id", sess.ID).
			Str("document_id", docID).
			Err(err).
			Msg("Ingestion failed")
		return nil
	}

	if err := s.advance(sess, session.EventIngestComplete); err != nil {
		return err
	}
	s.events.Publish(interfaces.Event{
		Type:       interfaces.EventDocumentReady,
		SessionID:  sess.ID,
		DocumentID: docID,
	})

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("document_id", docID).
		Msg("Document ingested")
	return nil
}

// extractAndIndex runs OCR, chunks the extracted text, embeds every
// chunk and indexes the result.
func (s *AgentService) extractAndIndex(ctx context.Context, docID string) error {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return err
	}

	segments, err := s.ocr.Extract(ctx, doc.Content, doc.MimeType)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	if err := s.documents.MarkReady(ctx, docID, segments); err != nil {
		return err
	}

	doc, err = s.documents.Get(ctx, docID)
	if err != nil {
		return err
	}

	chunks := s.chunker.Chunk(docID, doc.ExtractedText())
	for _, chunk := range chunks {
		embedding, err := s.embedding.GenerateEmbedding(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embedding failed for chunk %d: %w", chunk.Position, err)
		}
		chunk.Embedding = embedding
	}

	if err := s.index.Index(ctx, docID, chunks); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

// answer assembles context and generates the response. A generation
// failure returns the session to ready with the document still usable.
func (s *AgentService) answer(ctx context.Context, sess *models.SessionState, query string, response *interfaces.TurnResponse) error {
	// A session persisted mid-ingestion or mid-answer cannot take a
	// query until the transient phase resolves; a fresh upload is the
	// way out of a stale one.
	if sess.Phase == models.PhaseProcessing || sess.Phase == models.PhaseAnswering {
		return fmt.Errorf("query not valid in phase %s: %w", sess.Phase, interfaces.ErrStateConflict)
	}

	// ANSWERING is entered only from READY; context-free turns in
	// idle or failed phases answer without advancing the machine.
	answering := session.CanTransition(sess.Phase, session.EventAnswerStart)
	if answering {
		if err := s.advance(sess, session.EventAnswerStart); err != nil {
			return err
		}
	}

	contextText, chunkIDs, err := s.assembler.Assemble(ctx, sess, query)
	if err != nil {
		return s.failAnswer(sess, answering, err)
	}

	messages := s.buildMessages(sess, contextText, query)
	answer, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return s.failAnswer(sess, answering, err)
	}

	if err := s.sessions.RecordTurn(sess.ID, models.ConversationTurn{
		Role:    models.TurnRoleUser,
		Content: query,
	}); err != nil {
		return s.failAnswer(sess, answering, err)
	}
	if err := s.sessions.RecordTurn(sess.ID, models.ConversationTurn{
		Role:     models.TurnRoleAgent,
		Content:  answer,
		ChunkIDs: chunkIDs,
	}); err != nil {
		return s.failAnswer(sess, answering, err)
	}
	sess.Turns = append(sess.Turns,
		models.ConversationTurn{Role: models.TurnRoleUser, Content: query},
		models.ConversationTurn{Role: models.TurnRoleAgent, Content: answer, ChunkIDs: chunkIDs},
	)

	if answering {
		if err := s.advance(sess, session.EventAnswerComplete); err != nil {
			return err
		}
	}

	s.events.Publish(interfaces.Event{
		Type:      interfaces.EventTurnCompleted,
		SessionID: sess.ID,
	})

	response.Answer = answer
	response.UsedChunkIDs = chunkIDs
	return nil
}

// failAnswer unwinds a failed answer attempt, leaving the session ready
func (s *AgentService) failAnswer(sess *models.SessionState, answering bool, cause error) error {
	if answering {
		if err := s.advance(sess, session.EventAnswerFail); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to unwind answering phase")
		}
	}
	return fmt.Errorf("answer failed: %w", cause)
}

// buildMessages renders the prompt: system instructions with retrieval
// context, the recent conversation window, then the current query.
func (s *AgentService) buildMessages(sess *models.SessionState, contextText, query string) []interfaces.Message {
	recent := s.assembler.RecentTurns(sess)
	messages := make([]interfaces.Message, 0, len(recent)+2)
	messages = append(messages, interfaces.Message{
		Role:    "system",
		Content: buildSystemPrompt(contextText),
	})
	for _, turn := range recent {
		role := "user"
		if turn.Role == models.TurnRoleAgent {
			role = "assistant"
		}
		messages = append(messages, interfaces.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, interfaces.Message{Role: "user", Content: query})
	return messages
}

// advance applies a state machine event to the session and persists it
func (s *AgentService) advance(sess *models.SessionState, event session.SessionEvent) error {
	next, err := session.Transition(sess.Phase, event)
	if err != nil {
		return err
	}
	sess.Phase = next
	return s.sessions.Save(sess)
}

// HealthCheck verifies the downstream services a turn depends on
func (s *AgentService) HealthCheck(ctx context.Context) error {
	if err := s.ocr.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ocr service unhealthy: %w", err)
	}
	if err := s.llm.HealthCheck(ctx); err != nil {
		return fmt.Errorf("llm service unhealthy: %w", err)
	}
	return nil
}

// IsConflict reports whether an error is a state or concurrency conflict
func IsConflict(err error) bool {
	return errors.Is(err, interfaces.ErrStateConflict)
}
