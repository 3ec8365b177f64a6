// Package index splits extracted document text into overlapping chunks
// and serves similarity queries over their embeddings.
package index

import (
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// TextChunker splits text into fixed-size overlapping windows, preferring
// paragraph and sentence boundaries over hard cuts. Sizes are measured in
// runes so multi-byte text chunks predictably.
type TextChunker struct {
	chunkSize int
	overlap   int
}

// Compile-time assertion
var _ interfaces.Chunker = (*TextChunker)(nil)

// NewTextChunker creates a chunker with the given window size and overlap,
// both in runes. Overlap must be smaller than the window.
func NewTextChunker(chunkSize, overlap int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &TextChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Chunk splits the text into ordered chunks for the document. Every rune
// of the input appears in at least one chunk; each chunk's Overlap field
// records how many of its leading runes repeat the previous chunk's tail,
// so concatenating chunks minus overlaps reproduces the original text.
func (c *TextChunker) Chunk(documentID, text string) []*models.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []*models.Chunk
	start := 0
	prevEnd := 0

	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.findBoundary(runes, start, end)
		}

		overlap := 0
		if len(chunks) > 0 {
			overlap = prevEnd - start
		}

		chunks = append(chunks, &models.Chunk{
			ID:         common.NewChunkID(),
			DocumentID: documentID,
			Text:       string(runes[start:end]),
			Position:   len(chunks),
			Overlap:    overlap,
		})

		if end == len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		prevEnd = end
		start = next
	}

	return chunks
}

// findBoundary picks a cut point at or before limit, scanning backwards
// no further than half the window. Paragraph breaks win over sentence
// ends; with neither in range the cut lands exactly at limit.
func (c *TextChunker) findBoundary(runes []rune, start, limit int) int {
	floor := start + c.chunkSize/2
	if floor < start+1 {
		floor = start + 1
	}

	for i := limit; i > floor; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}

	for i := limit; i > floor; i-- {
		if isSentenceEnd(runes[i-2]) && isSpace(runes[i-1]) {
			return i
		}
	}

	return limit
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
