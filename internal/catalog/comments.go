package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const commentColumns = `id, document_id, parent_comment_id, comment_text, session_hash, status, flag_count, created_at`

func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.DocumentID, &c.ParentCommentID, &c.CommentText,
		&c.SessionHash, &c.Status, &c.FlagCount, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComment persists an auto-approved comment after checking the active
// cap and the parent constraints, all inside one transaction.
func (s *Store) CreateComment(ctx context.Context, c *models.Comment, maxActive int) (*models.Comment, error) {
	var created *models.Comment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var active int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM comments
			WHERE document_id = $1 AND status IN ($2, $3)`,
			c.DocumentID, models.CommentStatusPending, models.CommentStatusApproved).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active comments: %w", err)
		}
		if active >= maxActive {
			return utils.NewError(utils.KindInputInvalid,
				fmt.Sprintf("comment limit reached for this document (%d)", maxActive))
		}

		if c.ParentCommentID != nil {
			parent, err := scanComment(tx.QueryRow(ctx,
				`SELECT `+commentColumns+` FROM comments WHERE id = $1`, *c.ParentCommentID))
			if errors.Is(err, pgx.ErrNoRows) {
				return utils.NewError(utils.KindInputInvalid, "parent comment not found")
			}
			if err != nil {
				return fmt.Errorf("load parent comment: %w", err)
			}
			if parent.DocumentID != c.DocumentID {
				return utils.NewError(utils.KindInputInvalid, "parent comment belongs to a different document")
			}
			if parent.Status != models.CommentStatusApproved {
				return utils.NewError(utils.KindInputInvalid, "parent comment is not approved")
			}
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO comments (document_id, parent_comment_id, comment_text, session_hash, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+commentColumns,
			c.DocumentID, c.ParentCommentID, c.CommentText, c.SessionHash, models.CommentStatusApproved)
		created, err = scanComment(row)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListApprovedComments returns the flat public comment list for a document.
// Tree assembly and ordering happen in the service layer.
func (s *Store) ListApprovedComments(ctx context.Context, documentID int64) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE document_id = $1 AND status = $2
		 ORDER BY created_at ASC, id ASC`,
		documentID, models.CommentStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list comments for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var out []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetComment fetches one comment by id.
func (s *Store) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	c, err := scanComment(s.pool.QueryRow(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "comment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return c, nil
}

// FlagComment increments flag_count and flips the comment to flagged once the
// threshold is reached. Returns the updated comment.
func (s *Store) FlagComment(ctx context.Context, id int64) (*models.Comment, error) {
	c, err := scanComment(s.pool.QueryRow(ctx, `
		UPDATE comments SET
			flag_count = flag_count + 1,
			status = CASE WHEN flag_count + 1 >= $2 THEN $3 ELSE status END
		WHERE id = $1
		RETURNING `+commentColumns,
		id, models.FlagThreshold, models.CommentStatusFlagged))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "comment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("flag comment %d: %w", id, err)
	}
	return c, nil
}

// DeleteComment removes a comment and its whole reply subtree. When
// sessionHash is non-empty only the originating session may delete; the admin
// path passes an empty hash.
func (s *Store) DeleteComment(ctx context.Context, id int64, sessionHash string) error {
	c, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if sessionHash != "" && c.SessionHash != sessionHash {
		return utils.NewError(utils.KindNotFound, "comment not found")
	}

	// ON DELETE CASCADE on parent_comment_id removes the subtree.
	_, err = s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}
