package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// ContextAssembler builds the retrieval context for one turn. The
// assembly is deterministic: the same session state and query always
// produce the same context.
type ContextAssembler struct {
	documents interfaces.DocumentService
	embedding interfaces.EmbeddingService
	index     interfaces.IndexService
	logger    arbor.ILogger

	topK          int
	contextBudget int
	recentTurns   int
}

// NewContextAssembler creates a context assembler
func NewContextAssembler(
	documents interfaces.DocumentService,
	embedding interfaces.EmbeddingService,
	index interfaces.IndexService,
	config *common.RetrievalConfig,
	logger arbor.ILogger,
) *ContextAssembler {
	return &ContextAssembler{
		documents:     documents,
		embedding:     embedding,
		index:         index,
		logger:        logger,
		topK:          config.TopK,
		contextBudget: config.ContextBudget,
		recentTurns:   config.RecentTurns,
	}
}

// Assemble returns the context text and the ids of the chunks it was
// built from. A session without a ready document gets an empty context
// (pure conversational mode); an empty index is a control signal, not
// an error. Retrieved chunks are concatenated in document order within
// the context budget; when over budget the lowest-scoring chunks drop
// first. The most recent conversation turns are carried verbatim by the
// caller and their length is charged against the budget ahead of chunks.
func (a *ContextAssembler) Assemble(ctx context.Context, session *models.SessionState, query string) (string, []string, error) {
	if session.ActiveDocumentID == "" {
		return "", nil, nil
	}

	doc, err := a.documents.Get(ctx, session.ActiveDocumentID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("failed to load active document: %w", err)
	}
	if !doc.IsReady() {
		return "", nil, nil
	}

	queryEmbedding, err := a.embedding.GenerateQueryEmbedding(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := a.index.Query(ctx, doc.ID, queryEmbedding, a.topK)
	if err != nil {
		if errors.Is(err, interfaces.ErrEmptyIndex) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// Recent turns always win the budget race against chunks
	available := a.contextBudget - a.recentTurnsLength(session)
	selected := fitBudget(scored, available)
	if len(selected) == 0 {
		a.logger.Debug().
			Str("document_id", doc.ID).
			Msg("Context budget exhausted by conversation history")
		return "", nil, nil
	}

	// Concatenate in document order regardless of retrieval rank
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Chunk.Position < selected[j].Chunk.Position
	})

	parts := make([]string, 0, len(selected))
	chunkIDs := make([]string, 0, len(selected))
	for _, sc := range selected {
		parts = append(parts, sc.Chunk.Text)
		chunkIDs = append(chunkIDs, sc.Chunk.ID)
	}

	contextText := strings.Join(parts, "\n\n")
	a.logger.Debug().
		Str("document_id", doc.ID).
		Int("chunks_retrieved", len(scored)).
		Int("chunks_used", len(selected)).
		Int("context_runes", utf8.RuneCountInString(contextText)).
		Msg("Context assembled")

	return contextText, chunkIDs, nil
}

// RecentTurns returns the conversation turns carried verbatim into the
// prompt for this session.
func (a *ContextAssembler) RecentTurns(session *models.SessionState) []models.ConversationTurn {
	return session.RecentTurns(a.recentTurns)
}

func (a *ContextAssembler) recentTurnsLength(session *models.SessionState) int {
	total := 0
	for _, turn := range session.RecentTurns(a.recentTurns) {
		total += utf8.RuneCountInString(turn.Content)
	}
	return total
}

// fitBudget drops the lowest-scoring chunks until the remainder fits
// the rune budget. Ties drop the later chunk first, keeping the result
// deterministic.
func fitBudget(scored []models.ScoredChunk, budget int) []models.ScoredChunk {
	if budget <= 0 {
		return nil
	}

	// Worst score last
	ordered := make([]models.ScoredChunk, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Chunk.Position < ordered[j].Chunk.Position
	})

	total := 0
	for _, sc := range ordered {
		total += utf8.RuneCountInString(sc.Chunk.Text)
	}
	for total > budget && len(ordered) > 0 {
		last := ordered[len(ordered)-1]
		total -= utf8.RuneCountInString(last.Chunk.Text)
		ordered = ordered[:len(ordered)-1]
	}
	return ordered
}
