// Package pdf renders session transcripts as downloadable PDF files.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TranscriptService renders a session's conversation into a PDF.
// Agent answers are markdown and render with basic structure; user
// queries render as plain text.
type TranscriptService struct {
	logger arbor.ILogger
}

// NewTranscriptService creates a transcript exporter
func NewTranscriptService(logger arbor.ILogger) *TranscriptService {
	return &TranscriptService{logger: logger}
}

// Export renders the session transcript. The document, when present,
// contributes a header line naming the source of the answers.
func (s *TranscriptService) Export(session *models.SessionState, doc *models.Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Conversation Transcript")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 5, fmt.Sprintf("Session %s", session.ID))
	pdf.Ln(5)
	if doc != nil {
		pdf.Cell(0, 5, fmt.Sprintf("Document: %s", doc.Name))
		pdf.Ln(5)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	for _, turn := range session.Turns {
		s.renderTurn(pdf, turn)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Transcript export failed")
		return nil, fmt.Errorf("failed to generate transcript PDF: %w", err)
	}

	s.logger.Debug().
		Str("session_id", session.ID).
		Int("turns", len(session.Turns)).
		Int("pdf_size", buf.Len()).
		Msg("Transcript exported")

	return buf.Bytes(), nil
}

func (s *TranscriptService) renderTurn(pdf *fpdf.Fpdf, turn models.ConversationTurn) {
	label := "You"
	if turn.Role == models.TurnRoleAgent {
		label = "Assistant"
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, label)
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	if turn.Role == models.TurnRoleAgent {
		renderMarkdown(pdf, turn.Content)
	} else {
		pdf.MultiCell(0, 5, turn.Content, "", "L", false)
	}
	pdf.Ln(4)
}

// renderMarkdown writes markdown content with headings, paragraphs and
// list items; inline styling is flattened to plain text.
func renderMarkdown(pdf *fpdf.Fpdf, markdown string) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			pdf.SetFont("Arial", "B", 11)
			pdf.MultiCell(0, 6, flattenText(node, source), "", "L", false)
			pdf.SetFont("Arial", "", 10)
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			pdf.SetX(20)
			pdf.MultiCell(0, 5, "- "+flattenText(node, source), "", "L", false)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if _, ok := node.Parent().(*ast.ListItem); ok {
				return ast.WalkContinue, nil
			}
			pdf.MultiCell(0, 5, flattenText(node, source), "", "L", false)
			pdf.Ln(2)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			pdf.SetFont("Courier", "", 9)
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				pdf.MultiCell(0, 4, string(seg.Value(source)), "", "L", false)
			}
			pdf.SetFont("Arial", "", 10)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}

func flattenText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
