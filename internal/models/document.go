package models

import (
	"time"
)

// DocumentStatus tracks a document through the ingestion pipeline
type DocumentStatus string

const (
	// DocumentStatusUnprocessed indicates bytes received but OCR not started
	DocumentStatusUnprocessed DocumentStatus = "unprocessed"
	// DocumentStatusProcessing indicates OCR extraction is in flight
	DocumentStatusProcessing DocumentStatus = "processing"
	// DocumentStatusReady indicates extracted text is stored and indexed
	DocumentStatusReady DocumentStatus = "ready"
	// DocumentStatusFailed indicates ingestion failed (terminal for this document)
	DocumentStatusFailed DocumentStatus = "failed"
)

// SegmentTag classifies the structural role of an extracted text segment
type SegmentTag string

const (
	SegmentTagHeading   SegmentTag = "heading"
	SegmentTagParagraph SegmentTag = "paragraph"
	SegmentTagListItem  SegmentTag = "list-item"
)

// Segment is one unit of extracted text in source order.
// Tag is optional; untagged segments default to paragraph.
type Segment struct {
	Text string     `json:"text"`
	Tag  SegmentTag `json:"tag,omitempty"`
}

// Document represents an uploaded document and its extracted text.
// Raw bytes and segments are immutable once the document reaches ready.
type Document struct {
	// Identity
	ID       string `json:"id"`   // doc_{uuid}
	Name     string `json:"name"` // Original filename as uploaded
	MimeType string `json:"mime_type"`

	// Raw content
	Content   []byte `json:"content"`
	SizeBytes int64  `json:"size_bytes"`
	PageCount int    `json:"page_count,omitempty"` // Populated for PDFs at upload time

	// Extracted text (set by ingestion, ordered as in the source)
	Segments []Segment `json:"segments,omitempty"`

	// Processing state
	Status        DocumentStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExtractedText joins segments in source order with paragraph breaks.
// This is the canonical text that chunking operates on.
func (d *Document) ExtractedText() string {
	if len(d.Segments) == 0 {
		return ""
	}
	total := 0
	for _, seg := range d.Segments {
		total += len(seg.Text) + 2
	}
	buf := make([]byte, 0, total)
	for i, seg := range d.Segments {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, seg.Text...)
	}
	return string(buf)
}

// IsReady reports whether the document can serve retrieval queries
func (d *Document) IsReady() bool {
	return d.Status == DocumentStatusReady
}
