package models

import "time"

// BannedWord is a normalised lowercase word or phrase used by the comment
// spam filter, the search-time redactor, and the tagger filter.
type BannedWord struct {
	ID        int64     `json:"id"`
	Word      string    `json:"word"`
	CreatedAt time.Time `json:"created_at"`
}

// RAGQueryLog records one answered retrieval-augmented query.
type RAGQueryLog struct {
	ID             int64     `json:"id"`
	QueryText      string    `json:"query_text"`
	AnswerText     string    `json:"answer_text"`
	Confidence     float64   `json:"confidence"`
	SourcesCount   int       `json:"sources_count"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	DocumentID     *int64    `json:"document_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
