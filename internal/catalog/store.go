// Package catalog is the durable record of documents and their moderation
// surface. It owns all SQL against the documents, comments, annotations,
// banned_words and rag_query_logs tables. Status transitions are single
// transactions; cross-store effects (chunk purge, blob delete) are driven
// by follow-up tasks, not from here.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"document-archive-platform/internal/logger"
)

// Store wraps the Postgres pool for catalog operations.
type Store struct {
	pool *pgxpool.Pool
	dim  int // embedding dimension, fixed at deployment
}

// NewStore creates a catalog store over an existing pool.
func NewStore(pool *pgxpool.Pool, embeddingDim int) *Store {
	return &Store{pool: pool, dim: embeddingDim}
}

// Pool exposes the underlying pool for cross-store transactions.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// EnsureSchema creates the catalog tables and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("catalog schema: %w", err)
		}
	}
	logger.Info("Catalog schema ensured", "embedding_dim", s.dim)
	return nil
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
