package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
	"github.com/ternarybob/lector/internal/services/documents"
	"github.com/ternarybob/lector/internal/services/embeddings"
	"github.com/ternarybob/lector/internal/services/events"
	"github.com/ternarybob/lector/internal/services/index"
	"github.com/ternarybob/lector/internal/services/session"
)

// ---- in-memory storage fakes ----

type memoryDocumentStorage struct {
	docs map[string]*models.Document
}

func (m *memoryDocumentStorage) SaveDocument(doc *models.Document) error {
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memoryDocumentStorage) GetDocument(id string) (*models.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, interfaces.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (m *memoryDocumentStorage) ListDocuments(limit int) ([]*models.Document, error) {
	out := make([]*models.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memoryDocumentStorage) DeleteDocument(id string) error {
	delete(m.docs, id)
	return nil
}

type memoryChunkStorage struct {
	chunks map[string][]*models.Chunk
}

func (m *memoryChunkStorage) SaveChunks(documentID string, chunks []*models.Chunk) error {
	m.chunks[documentID] = chunks
	return nil
}

func (m *memoryChunkStorage) GetChunks(documentID string) ([]*models.Chunk, error) {
	return m.chunks[documentID], nil
}

func (m *memoryChunkStorage) DeleteChunks(documentID string) error {
	delete(m.chunks, documentID)
	return nil
}

type memorySessionStorage struct {
	sessions map[string]*models.SessionState

	// failOnSave makes the nth save (1-based, counted from saveCalls)
	// fail, for exercising persistence-error unwinding
	saveCalls  int
	failOnSave int
}

func (m *memorySessionStorage) SaveSession(s *models.SessionState) error {
	m.saveCalls++
	if m.failOnSave > 0 && m.saveCalls == m.failOnSave {
		return errors.New("session write failed")
	}
	copied := *s
	copied.Turns = append([]models.ConversationTurn(nil), s.Turns...)
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memorySessionStorage) GetSession(id string) (*models.SessionState, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, interfaces.ErrNotFound)
	}
	copied := *s
	copied.Turns = append([]models.ConversationTurn(nil), s.Turns...)
	return &copied, nil
}

func (m *memorySessionStorage) ListSessions() ([]*models.SessionState, error) {
	out := make([]*models.SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memorySessionStorage) DeleteSession(id string) error {
	delete(m.sessions, id)
	return nil
}

// ---- external service stubs ----

type stubOCR struct {
	calls    int
	segments []models.Segment
	err      error
}

func (s *stubOCR) Extract(ctx context.Context, content []byte, mimeHint string) ([]models.Segment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.segments, nil
}

func (s *stubOCR) HealthCheck(ctx context.Context) error { return nil }

type stubLLM struct {
	embedCalls int
	chatCalls  int
	answer     string
	chatErr    error
	lastChat   []interfaces.Message
}

func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	s.embedCalls++
	return []float32{1, 0, 0}, nil
}

func (s *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	s.chatCalls++
	s.lastChat = messages
	if s.chatErr != nil {
		return "", s.chatErr
	}
	return s.answer, nil
}

func (s *stubLLM) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLLM) ModelName() string                     { return "stub" }
func (s *stubLLM) Close() error                          { return nil }

// ---- harness ----

type harness struct {
	agent        *AgentService
	sessions     *session.Manager
	sessionStore *memorySessionStorage
	ocr          *stubOCR
	llm          *stubLLM
	docs         *memoryDocumentStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := arbor.NewLogger()

	docStorage := &memoryDocumentStorage{docs: make(map[string]*models.Document)}
	chunkStorage := &memoryChunkStorage{chunks: make(map[string][]*models.Chunk)}
	sessionStorage := &memorySessionStorage{sessions: make(map[string]*models.SessionState)}

	llm := &stubLLM{answer: "The document says billing is monthly."}
	ocr := &stubOCR{segments: []models.Segment{
		{Text: "Billing Policy", Tag: models.SegmentTagHeading},
		{Text: "Invoices are issued monthly.", Tag: models.SegmentTagParagraph},
	}}

	docService := documents.NewDocumentService(docStorage, &common.IngestConfig{
		MaxUploadSize: 1 << 20,
		ChunkSize:     1000,
		ChunkOverlap:  200,
	}, logger)
	embedService := embeddings.NewEmbeddingService(llm, 3, logger)
	vectorIndex := index.NewVectorIndex(chunkStorage, logger)
	chunker := index.NewTextChunker(1000, 200)

	manager, err := session.NewManager(sessionStorage, &common.SessionConfig{
		IdleTimeout:   "30m",
		SweepSchedule: "@every 1m",
	}, logger)
	require.NoError(t, err)

	assembler := NewContextAssembler(docService, embedService, vectorIndex, &common.RetrievalConfig{
		TopK:          5,
		ContextBudget: 6000,
		RecentTurns:   6,
	}, logger)

	eventService := events.NewService(logger)
	t.Cleanup(eventService.Close)

	agent := NewAgentService(docService, ocr, embedService, vectorIndex, chunker,
		manager, llm, eventService, assembler, logger)

	return &harness{
		agent:        agent,
		sessions:     manager,
		sessionStore: sessionStorage,
		ocr:          ocr,
		llm:          llm,
		docs:         docStorage,
	}
}

// seedPhase persists a session in the given phase, as if a prior process
// died mid-turn
func (h *harness) seedPhase(t *testing.T, sessionID string, phase models.SessionPhase) {
	t.Helper()
	sess, err := h.sessions.GetOrCreate(sessionID)
	require.NoError(t, err)
	sess.Phase = phase
	require.NoError(t, h.sessions.Save(sess))
}

func uploadRequest(sessionID, query string) *interfaces.TurnRequest {
	return &interfaces.TurnRequest{
		SessionID:    sessionID,
		Query:        query,
		Document:     []byte{0xff, 0xd8, 0xff, 0x01},
		DocumentName: "policy.jpg",
		DocumentMime: "image/jpeg",
	}
}

// ---- scenarios ----

func TestTurn_UploadAndQuery(t *testing.T) {
	h := newHarness(t)

	resp, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "when are invoices issued?"))
	require.NoError(t, err)

	assert.Equal(t, models.PhaseReady, resp.Phase)
	assert.Equal(t, "The document says billing is monthly.", resp.Answer)
	assert.NotEmpty(t, resp.DocumentID)
	assert.NotEmpty(t, resp.UsedChunkIDs)
	assert.Empty(t, resp.ErrorMessage)

	// Document reached ready with extracted segments
	doc := h.docs.docs[resp.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)

	// Both turns recorded
	sess, err := h.sessions.Get("session_1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, models.TurnRoleUser, sess.Turns[0].Role)
	assert.Equal(t, models.TurnRoleAgent, sess.Turns[1].Role)
	assert.NotEmpty(t, sess.Turns[1].ChunkIDs)

	// Prompt was grounded in document context
	require.NotEmpty(t, h.llm.lastChat)
	assert.Equal(t, "system", h.llm.lastChat[0].Role)
	assert.Contains(t, h.llm.lastChat[0].Content, "Invoices are issued monthly.")
}

func TestTurn_QueryWithoutDocument(t *testing.T) {
	h := newHarness(t)
	h.llm.answer = "Upload a document and I can answer questions about it."

	resp, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "what does the contract say?",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseIdle, resp.Phase)
	assert.NotEmpty(t, resp.Answer)
	assert.Empty(t, resp.UsedChunkIDs)

	// Conversational prompt, no document excerpts
	assert.NotContains(t, h.llm.lastChat[0].Content, "Document excerpts")
}

func TestTurn_UploadOnly(t *testing.T) {
	h := newHarness(t)

	resp, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)

	assert.Equal(t, models.PhaseReady, resp.Phase)
	assert.Empty(t, resp.Answer)
	assert.Equal(t, 0, h.llm.chatCalls)

	// Follow-up query uses the already-ingested document
	resp2, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "summarize the billing policy",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, resp2.Phase)
	assert.NotEmpty(t, resp2.UsedChunkIDs)
	assert.Equal(t, 1, h.ocr.calls)
}

func TestTurn_IngestionFailureFallsBackToContextFree(t *testing.T) {
	h := newHarness(t)
	h.ocr.err = interfaces.NewPermanentServiceError("ocr", errors.New("unreadable scan"))
	h.llm.answer = "I could not read the document, but happy to help otherwise."

	resp, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "what does it say?"))
	require.NoError(t, err)

	assert.Equal(t, models.PhaseFailed, resp.Phase)
	assert.NotEmpty(t, resp.Answer)
	assert.Empty(t, resp.UsedChunkIDs)
	assert.Contains(t, resp.ErrorMessage, "document processing failed")

	doc := h.docs.docs[resp.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocumentStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.FailureReason)
}

func TestTurn_FailedSessionRecoversOnNewUpload(t *testing.T) {
	h := newHarness(t)
	h.ocr.err = interfaces.NewPermanentServiceError("ocr", errors.New("unreadable scan"))

	resp, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)
	require.Equal(t, models.PhaseFailed, resp.Phase)

	// A fresh upload is the recovery path
	h.ocr.err = nil
	resp2, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "and now?"))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, resp2.Phase)
	assert.NotEqual(t, resp.DocumentID, resp2.DocumentID)
	assert.NotEmpty(t, resp2.Answer)
}

func TestTurn_GenerationFailureKeepsSessionReady(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)

	h.llm.chatErr = interfaces.NewTransientServiceError("generation", errors.New("upstream timeout"))
	_, err = h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "summarize it",
	})
	require.Error(t, err)

	// Session returns to ready and the document stays usable
	sess, getErr := h.sessions.Get("session_1")
	require.NoError(t, getErr)
	assert.Equal(t, models.PhaseReady, sess.Phase)
	assert.Empty(t, sess.Turns)

	h.llm.chatErr = nil
	resp, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "summarize it",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)
}

func TestTurn_QueryWhileProcessingConflicts(t *testing.T) {
	h := newHarness(t)
	h.seedPhase(t, "session_1", models.PhaseProcessing)

	_, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "what does it say?",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)
	assert.Equal(t, 0, h.llm.chatCalls)

	// Session state untouched by the rejected turn
	sess, err := h.sessions.Get("session_1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseProcessing, sess.Phase)
	assert.Empty(t, sess.Turns)
}

func TestTurn_QueryWhileAnsweringConflicts(t *testing.T) {
	h := newHarness(t)
	h.seedPhase(t, "session_1", models.PhaseAnswering)

	_, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "still there?",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)

	sess, err := h.sessions.Get("session_1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAnswering, sess.Phase)
	assert.Empty(t, sess.Turns)
}

func TestTurn_UploadRecoversStaleProcessingSession(t *testing.T) {
	h := newHarness(t)
	h.seedPhase(t, "session_1", models.PhaseProcessing)

	// A fresh upload replaces the document reference and leaves the
	// stale transient phase behind
	resp, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "and now?"))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, resp.Phase)
	assert.NotEmpty(t, resp.Answer)
	assert.NotEmpty(t, resp.DocumentID)
}

func TestTurn_TurnRecordFailureUnwindsToReady(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)

	// Fail the save that records the user turn: the answering turn
	// saves once entering ANSWERING, then once per recorded turn
	h.sessionStore.saveCalls = 0
	h.sessionStore.failOnSave = 2

	_, err = h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "summarize it",
	})
	require.Error(t, err)

	// The session is never left stuck in the answering phase
	sess, getErr := h.sessions.Get("session_1")
	require.NoError(t, getErr)
	assert.Equal(t, models.PhaseReady, sess.Phase)
}

func TestTurn_ConcurrentTurnConflicts(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)
	before, err := h.sessions.Get("session_1")
	require.NoError(t, err)

	// Simulate a turn in flight on the same session
	require.NoError(t, h.sessions.Acquire("session_1"))
	defer h.sessions.Release("session_1")

	_, err = h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "second turn",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)

	// Session state untouched by the rejected turn
	after, err := h.sessions.Get("session_1")
	require.NoError(t, err)
	assert.Equal(t, before.Phase, after.Phase)
	assert.Len(t, after.Turns, len(before.Turns))
}

func TestTurn_EmptyRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.Turn(context.Background(), &interfaces.TurnRequest{SessionID: "session_1"})
	require.Error(t, err)
	assert.True(t, interfaces.IsInputError(err))
}

func TestTurn_RecentTurnsCarriedIntoPrompt(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "first question"))
	require.NoError(t, err)

	_, err = h.agent.Turn(context.Background(), &interfaces.TurnRequest{
		SessionID: "session_1",
		Query:     "follow-up question",
	})
	require.NoError(t, err)

	// The prior exchange precedes the new query
	var contents []string
	for _, msg := range h.llm.lastChat {
		contents = append(contents, msg.Role+": "+msg.Content)
	}
	joined := strings.Join(contents, "\n")
	assert.Contains(t, joined, "first question")
	assert.Contains(t, joined, "follow-up question")
	assert.Equal(t, "user", h.llm.lastChat[len(h.llm.lastChat)-1].Role)
}

func TestTurn_ReplaceDocument(t *testing.T) {
	h := newHarness(t)

	resp1, err := h.agent.Turn(context.Background(), uploadRequest("session_1", ""))
	require.NoError(t, err)

	h.ocr.segments = []models.Segment{{Text: "Second document content.", Tag: models.SegmentTagParagraph}}
	resp2, err := h.agent.Turn(context.Background(), uploadRequest("session_1", "what changed?"))
	require.NoError(t, err)

	assert.NotEqual(t, resp1.DocumentID, resp2.DocumentID)
	assert.Contains(t, h.llm.lastChat[0].Content, "Second document content.")

	// The first document is retained even after replacement
	assert.Contains(t, h.docs.docs, resp1.DocumentID)
}
