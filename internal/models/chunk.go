package models

// Chunk is a bounded span of a document's extracted text, embedded for
// similarity search. Chunks partition the text with bounded overlap and
// are immutable once created; they are destroyed with their document.
type Chunk struct {
	ID         string `json:"id"`          // chunk_{uuid}
	DocumentID string `json:"document_id"` // Owning document
	Text       string `json:"text"`

	// Position is the 0-based index of this chunk in source order.
	// Used for deterministic tie-breaking and for reassembling context
	// in document order.
	Position int `json:"position"`

	// Overlap is the number of runes at the start of Text that repeat
	// the tail of the previous chunk. Zero for the first chunk.
	Overlap int `json:"overlap"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// ScoredChunk pairs a chunk with its retrieval similarity score
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}
