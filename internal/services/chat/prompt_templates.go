// Package chat orchestrates conversational turns: state machine
// advancement, document ingestion, retrieval-augmented context assembly
// and response generation.
package chat

import (
	"fmt"
	"strings"
)

const groundedSystemPrompt = `You are a document assistant. Answer the user's question using only the document excerpts provided below.

Rules:
- Base every statement on the excerpts. Do not use outside knowledge.
- If the excerpts do not contain enough information to answer, say so explicitly instead of guessing.
- Quote or reference the document where it helps the answer.

Document excerpts:
%s`

const conversationalSystemPrompt = `You are a document assistant. No document is available in this conversation yet.

Answer conversationally. If the user asks about document content, explain that they need to upload a document first.`

// buildSystemPrompt selects the grounded or conversational instruction
// set based on whether retrieval produced any context.
func buildSystemPrompt(contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return conversationalSystemPrompt
	}
	return fmt.Sprintf(groundedSystemPrompt, contextText)
}
