// Package vectorstore persists document chunks with pgvector embeddings
// and serves cosine similarity search over them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"document-archive-platform/internal/logger"
	"document-archive-platform/models"
)

// Store owns the document_chunks table.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// NewStore creates a chunk store for embeddings of the given dimension.
func NewStore(pool *pgxpool.Pool, dim int) *Store {
	return &Store{pool: pool, dim: dim}
}

// EnsureSchema creates the chunk table and its indexes. The HNSW index
// uses cosine distance, matching the normalised embeddings we store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			document_title TEXT NOT NULL DEFAULT '',
			document_country TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (document_id, chunk_index)
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON document_chunks
			USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("vectorstore schema: %w", err)
		}
	}
	return nil
}

// UpsertChunks writes a document's chunks in one batch, replacing content
// and embeddings for indices that already exist. Chunks without an
// embedding are stored with a NULL vector and skipped by search.
func (s *Store) UpsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		var embedding interface{}
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(`
			INSERT INTO document_chunks
				(document_id, chunk_index, content, document_title, document_country, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (document_id, chunk_index) DO UPDATE SET
				content = EXCLUDED.content,
				document_title = EXCLUDED.document_title,
				document_country = EXCLUDED.document_country,
				embedding = EXCLUDED.embedding`,
			c.DocumentID, c.ChunkIndex, c.Content, c.DocumentTitle, c.DocumentCountry, embedding)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}
	return nil
}

// TrimChunks removes chunk rows at or beyond the given index, so a
// re-process that yields fewer chunks leaves no stale tail.
func (s *Store) TrimChunks(ctx context.Context, documentID int64, fromIndex int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1 AND chunk_index >= $2`,
		documentID, fromIndex)
	if err != nil {
		return fmt.Errorf("trim chunks for document %d: %w", documentID, err)
	}
	return nil
}

// PurgeDocument deletes every chunk of a document and reports how many
// rows went away. Used when a document loses its approved status.
func (s *Store) PurgeDocument(ctx context.Context, documentID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("purge chunks for document %d: %w", documentID, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		logger.Logger.Info("purged document chunks", "document_id", documentID, "chunks", n)
		return n, nil
	}
	return 0, nil
}

// CountChunks returns the number of stored chunks for a document.
func (s *Store) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks for document %d: %w", documentID, err)
	}
	return n, nil
}

// Search returns the topK chunks nearest the query embedding by cosine
// similarity, restricted to publicly visible documents. Results below
// minSimilarity are dropped after the index scan.
func (s *Store) Search(ctx context.Context, query []float32, topK int, minSimilarity float64) ([]*models.ChunkMatch, error) {
	return s.search(ctx, query, 0, topK, minSimilarity)
}

// SearchScoped restricts the nearest-chunk search to one document.
func (s *Store) SearchScoped(ctx context.Context, query []float32, documentID int64, topK int, minSimilarity float64) ([]*models.ChunkMatch, error) {
	return s.search(ctx, query, documentID, topK, minSimilarity)
}

func (s *Store) search(ctx context.Context, query []float32, documentID int64, topK int, minSimilarity float64) ([]*models.ChunkMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content,
		       c.document_title, c.document_country, c.created_at,
		       1 - (c.embedding <=> $1) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		  AND d.status IN ('approved', 'processed')
		  AND ($3 = 0 OR c.document_id = $3)
		ORDER BY c.embedding <=> $1
		LIMIT $2`, pgvector.NewVector(query), topK, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	defer rows.Close()

	var out []*models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		err := rows.Scan(&m.ID, &m.DocumentID, &m.ChunkIndex, &m.Content,
			&m.DocumentTitle, &m.DocumentCountry, &m.CreatedAt, &m.Similarity)
		if err != nil {
			return nil, err
		}
		if m.Similarity < minSimilarity {
			continue
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
