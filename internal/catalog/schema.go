package catalog

import "fmt"

// schemaStatements returns the catalog DDL. The embedding column dimension is
// fixed at deployment; changing it requires the migrate command's
// recreate-vectors step.
func schemaStatements(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			country TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			original_filename TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT 'application/pdf',
			file_key TEXT NOT NULL,
			document_language TEXT NOT NULL DEFAULT 'english',
			status TEXT NOT NULL DEFAULT 'pending',
			ocr_text_original TEXT NOT NULL DEFAULT '',
			ocr_text_english TEXT NOT NULL DEFAULT '',
			search_text TEXT NOT NULL DEFAULT '',
			extracted_text TEXT NOT NULL DEFAULT '',
			summary TEXT,
			generated_tags TEXT[] NOT NULL DEFAULT '{}',
			embedding vector(%d),
			view_count BIGINT NOT NULL DEFAULT 0,
			hidden_from_top BOOLEAN NOT NULL DEFAULT FALSE,
			approved_by TEXT NOT NULL DEFAULT '',
			rejected_by TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ,
			approved_at TIMESTAMPTZ,
			rejected_at TIMESTAMPTZ,
			fts tsvector GENERATED ALWAYS AS (
				to_tsvector('simple',
					left(title, 10000) || ' ' ||
					left(ocr_text_english, 100000) || ' ' ||
					left(search_text, 100000))
			) STORED
		)`, dim),

		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_country ON documents (country)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_state ON documents (state)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_view_count ON documents (view_count DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_language ON documents (document_language)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_fts ON documents USING GIN (fts)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			parent_comment_id BIGINT REFERENCES comments(id) ON DELETE CASCADE,
			comment_text TEXT NOT NULL,
			session_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'approved',
			flag_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_document ON comments (document_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments (parent_comment_id)`,

		`CREATE TABLE IF NOT EXISTS annotations (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			page_number INT NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			width DOUBLE PRECISION NOT NULL,
			height DOUBLE PRECISION NOT NULL,
			highlighted_text TEXT NOT NULL DEFAULT '',
			annotation_note TEXT NOT NULL DEFAULT '',
			session_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT annotations_rect_chk CHECK (page_number >= 1 AND x >= 0 AND y >= 0 AND width > 0 AND height > 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations (document_id, page_number)`,

		`CREATE TABLE IF NOT EXISTS banned_words (
			id BIGSERIAL PRIMARY KEY,
			word TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS rag_query_logs (
			id BIGSERIAL PRIMARY KEY,
			query_text TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			sources_count INT NOT NULL DEFAULT 0,
			response_time_ms BIGINT NOT NULL DEFAULT 0,
			document_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS view_suppressions (
			document_id BIGINT NOT NULL,
			session_hash TEXT NOT NULL,
			seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (document_id, session_hash)
		)`,
	}
}
