package models

import (
	"time"
)

// Document lifecycle status constants
const (
	DocStatusPending   = "pending"
	DocStatusApproved  = "approved"
	DocStatusRejected  = "rejected"
	DocStatusProcessed = "processed"
)

// Document represents one archived upload and its extracted artefacts
type Document struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Country          string     `json:"country"`
	State            string     `json:"state,omitempty"`
	Description      string     `json:"description,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	FileSize         int64      `json:"file_size"`
	ContentType      string     `json:"content_type"` // always application/pdf after sanitisation
	FileKey          string     `json:"file_path"`    // object store key documents/<uuid>.pdf
	DocumentLanguage string     `json:"document_language"`
	Status           string     `json:"status"` // pending, approved, rejected, processed
	OCRTextOriginal  string     `json:"ocr_text_original,omitempty"`
	OCRTextEnglish   string     `json:"ocr_text_english,omitempty"`
	SearchText       string     `json:"-"` // top-1000-word reduction for full-text
	ExtractedText    string     `json:"-"` // sanitiser side-channel for text-born formats
	Summary          *string    `json:"summary,omitempty"`
	GeneratedTags    []string   `json:"generated_tags,omitempty"`
	Embedding        []float32  `json:"-"` // document-level vector, optional
	ViewCount        int64      `json:"view_count"`
	HiddenFromTop    bool       `json:"hidden_from_top"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	RejectedBy       string     `json:"rejected_by,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
}

// IsPubliclyVisible reports whether anonymous reads may see the document.
func (d *Document) IsPubliclyVisible() bool {
	return d.Status == DocStatusApproved || d.Status == DocStatusProcessed
}

// EnglishText returns the English rendition of the document text: the
// stored translation when one exists, or the original text for English
// sources, which are never translated.
func (d *Document) EnglishText() string {
	if d.OCRTextEnglish != "" {
		return d.OCRTextEnglish
	}
	if d.DocumentLanguage == "english" {
		return d.OCRTextOriginal
	}
	return ""
}

// SearchDocument is the public search/read shape of a Document with
// redaction and translation promotion already applied.
type SearchDocument struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"title"`
	Country               string    `json:"country"`
	State                 string    `json:"state,omitempty"`
	Description           string    `json:"description,omitempty"`
	DocumentLanguage      string    `json:"document_language"`
	OCRText               string    `json:"ocr_text,omitempty"` // English promoted when available
	Summary               *string   `json:"summary,omitempty"`
	GeneratedTags         []string  `json:"generated_tags,omitempty"`
	ViewCount             int64     `json:"view_count"`
	Similarity            float64   `json:"similarity,omitempty"` // semantic score, 0 for keyword-only hits
	HasEnglishTranslation bool      `json:"has_english_translation"`
	HasArabicText         bool      `json:"has_arabic_text,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// SearchResponse pages SearchDocument results.
type SearchResponse struct {
	Results    []SearchDocument `json:"results"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	SearchType string           `json:"search_type"`
}

// UploadResult is returned by the intake endpoints.
type UploadResult struct {
	DocumentID int64  `json:"document_id"`
	FileURL    string `json:"file_url"`
	FilePath   string `json:"file_path"`
	JobID      *int64 `json:"job_id"` // populated only at approval time
	Message    string `json:"message"`
}
