package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const annotationColumns = `id, document_id, page_number, x, y, width, height, highlighted_text, annotation_note, session_hash, created_at`

func scanAnnotation(row pgx.Row) (*models.Annotation, error) {
	var a models.Annotation
	err := row.Scan(&a.ID, &a.DocumentID, &a.PageNumber, &a.X, &a.Y, &a.Width, &a.Height,
		&a.HighlightedText, &a.AnnotationNote, &a.SessionHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAnnotation persists a validated page highlight.
func (s *Store) CreateAnnotation(ctx context.Context, a *models.Annotation) (*models.Annotation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO annotations (document_id, page_number, x, y, width, height,
			highlighted_text, annotation_note, session_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+annotationColumns,
		a.DocumentID, a.PageNumber, a.X, a.Y, a.Width, a.Height,
		a.HighlightedText, a.AnnotationNote, a.SessionHash)
	created, err := scanAnnotation(row)
	if err != nil {
		return nil, fmt.Errorf("insert annotation: %w", err)
	}
	return created, nil
}

// ListAnnotations returns all highlights for a document ordered by page.
func (s *Store) ListAnnotations(ctx context.Context, documentID int64) ([]*models.Annotation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+annotationColumns+` FROM annotations
		 WHERE document_id = $1
		 ORDER BY page_number ASC, created_at ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list annotations for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var out []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnnotation removes one highlight and returns it; non-empty
// sessionHash restricts the delete to the originating session.
func (s *Store) DeleteAnnotation(ctx context.Context, id int64, sessionHash string) (*models.Annotation, error) {
	a, err := scanAnnotation(s.pool.QueryRow(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "annotation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation %d: %w", id, err)
	}
	if sessionHash != "" && a.SessionHash != sessionHash {
		return nil, utils.NewError(utils.KindNotFound, "annotation not found")
	}

	_, err = s.pool.Exec(ctx, `DELETE FROM annotations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete annotation %d: %w", id, err)
	}
	return a, nil
}
