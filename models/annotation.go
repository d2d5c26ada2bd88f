package models

import "time"

// Annotation is a rectangle-bounded highlight on one page of a document.
// Coordinates are in page space: x,y >= 0, width/height > 0, page >= 1.
type Annotation struct {
	ID              int64     `json:"id"`
	DocumentID      int64     `json:"document_id"`
	PageNumber      int       `json:"page_number"`
	X               float64   `json:"x"`
	Y               float64   `json:"y"`
	Width           float64   `json:"width"`
	Height          float64   `json:"height"`
	HighlightedText string    `json:"highlighted_text,omitempty"`
	AnnotationNote  string    `json:"annotation_note,omitempty"`
	SessionHash     string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks the rectangle invariants.
func (a *Annotation) Validate() bool {
	return a.PageNumber >= 1 && a.X >= 0 && a.Y >= 0 && a.Width > 0 && a.Height > 0
}
