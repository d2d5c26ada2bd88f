package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"document-archive-platform/models"
	"document-archive-platform/utils"
)

// ListBannedWords returns all banned words ordered alphabetically.
func (s *Store) ListBannedWords(ctx context.Context) ([]*models.BannedWord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, word, created_at FROM banned_words ORDER BY word ASC`)
	if err != nil {
		return nil, fmt.Errorf("list banned words: %w", err)
	}
	defer rows.Close()

	var out []*models.BannedWord
	for rows.Next() {
		var w models.BannedWord
		if err := rows.Scan(&w.ID, &w.Word, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// BannedWordSet returns the normalised words for filter construction.
func (s *Store) BannedWordSet(ctx context.Context) ([]string, error) {
	words, err := s.ListBannedWords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.Word)
	}
	return out, nil
}

// AddBannedWord inserts a normalised lowercase word; duplicates are conflicts.
func (s *Store) AddBannedWord(ctx context.Context, word string) (*models.BannedWord, error) {
	normalised := strings.ToLower(strings.TrimSpace(word))
	if normalised == "" {
		return nil, utils.NewError(utils.KindInputInvalid, "banned word must not be empty")
	}

	var w models.BannedWord
	err := s.pool.QueryRow(ctx, `
		INSERT INTO banned_words (word) VALUES ($1)
		ON CONFLICT (word) DO NOTHING
		RETURNING id, word, created_at`, normalised).Scan(&w.ID, &w.Word, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindConflict, "word is already banned")
	}
	if err != nil {
		return nil, fmt.Errorf("add banned word: %w", err)
	}
	return &w, nil
}

// RemoveBannedWord deletes a banned word by id.
func (s *Store) RemoveBannedWord(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM banned_words WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove banned word %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewError(utils.KindNotFound, "banned word not found")
	}
	return nil
}

// InsertQueryLog records one answered RAG query.
func (s *Store) InsertQueryLog(ctx context.Context, l *models.RAGQueryLog) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rag_query_logs (query_text, answer_text, confidence, sources_count, response_time_ms, document_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		l.QueryText, l.AnswerText, l.Confidence, l.SourcesCount, l.ResponseTimeMs, l.DocumentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert query log: %w", err)
	}
	return id, nil
}
