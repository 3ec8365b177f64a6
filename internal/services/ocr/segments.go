package ocr

import (
	"strings"

	"github.com/ternarybob/lector/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdownSegments converts OCR markdown output into tagged text
// segments in reading order. Headings, paragraphs and list items each
// become one segment; tables and code blocks are flattened into
// paragraph segments so their text stays searchable.
func ParseMarkdownSegments(markdown string) []models.Segment {
	source := []byte(markdown)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	)
	doc := md.Parser().Parse(text.NewReader(source))

	collector := &segmentCollector{source: source}
	_ = ast.Walk(doc, collector.walk)

	return collector.segments
}

type segmentCollector struct {
	source   []byte
	segments []models.Segment
}

func (c *segmentCollector) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch node := n.(type) {
	case *ast.Heading:
		c.add(nodeText(node, c.source), models.SegmentTagHeading)
		return ast.WalkSkipChildren, nil
	case *ast.ListItem:
		c.add(nodeText(node, c.source), models.SegmentTagListItem)
		return ast.WalkSkipChildren, nil
	case *ast.Paragraph:
		// Paragraphs nested inside list items are handled by the item
		if insideListItem(node) {
			return ast.WalkContinue, nil
		}
		c.add(nodeText(node, c.source), models.SegmentTagParagraph)
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock:
		c.add(linesText(node.Lines(), c.source), models.SegmentTagParagraph)
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		c.add(linesText(node.Lines(), c.source), models.SegmentTagParagraph)
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (c *segmentCollector) add(text string, tag models.SegmentTag) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.segments = append(c.segments, models.Segment{Text: text, Tag: tag})
}

func insideListItem(n ast.Node) bool {
	for parent := n.Parent(); parent != nil; parent = parent.Parent() {
		if _, ok := parent.(*ast.ListItem); ok {
			return true
		}
	}
	return false
}

// nodeText flattens all text content beneath a node, separating block
// children with spaces.
func nodeText(n ast.Node, source []byte) string {
	var builder strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			builder.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(builder.String()), " ")
}

func linesText(lines *text.Segments, source []byte) string {
	var builder strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		builder.Write(seg.Value(source))
	}
	return builder.String()
}
