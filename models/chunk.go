package models

import "time"

// Chunk is a contiguous slice of a document's combined text, the unit of
// semantic retrieval. Addressed by (DocumentID, ChunkIndex) unique.
type Chunk struct {
	ID              int64     `json:"id"`
	DocumentID      int64     `json:"document_id"`
	ChunkIndex      int       `json:"chunk_index"`
	Content         string    `json:"content"`
	DocumentTitle   string    `json:"document_title"`
	DocumentCountry string    `json:"document_country"`
	Embedding       []float32 `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// ChunkMatch is a chunk returned from a similarity search.
type ChunkMatch struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// RAGSource identifies one cited document in a RAG answer.
type RAGSource struct {
	DocumentID    int64  `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	Country       string `json:"country"`
	ChunkPreview  string `json:"chunk_preview"`
}

// RAGAnswer is the packaged response of the RAG answerer.
type RAGAnswer struct {
	Question       string      `json:"question"`
	Answer         string      `json:"answer"`
	Confidence     float64     `json:"confidence"`
	Sources        []RAGSource `json:"sources"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	QueryID        int64       `json:"query_id,omitempty"`
}
