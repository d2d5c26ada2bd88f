package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const documentColumns = `id, title, country, state, description, original_filename, file_size,
	content_type, file_key, document_language, status, ocr_text_original, ocr_text_english,
	search_text, extracted_text, summary, generated_tags, view_count, hidden_from_top,
	approved_by, rejected_by, rejection_reason, created_at, updated_at, processed_at,
	approved_at, rejected_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Title, &d.Country, &d.State, &d.Description, &d.OriginalFilename,
		&d.FileSize, &d.ContentType, &d.FileKey, &d.DocumentLanguage, &d.Status,
		&d.OCRTextOriginal, &d.OCRTextEnglish, &d.SearchText, &d.ExtractedText, &d.Summary,
		&d.GeneratedTags, &d.ViewCount, &d.HiddenFromTop, &d.ApprovedBy, &d.RejectedBy,
		&d.RejectionReason, &d.CreatedAt, &d.UpdatedAt, &d.ProcessedAt, &d.ApprovedAt, &d.RejectedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDocument inserts a freshly sanitised upload with status=pending.
func (s *Store) CreateDocument(ctx context.Context, d *models.Document) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (title, country, state, description, original_filename,
			file_size, content_type, file_key, document_language, status, extracted_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		d.Title, d.Country, d.State, d.Description, d.OriginalFilename,
		d.FileSize, d.ContentType, d.FileKey, d.DocumentLanguage, models.DocStatusPending,
		d.ExtractedText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// GetDocument fetches any document by id regardless of status.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// GetPublicDocument fetches a document visible to anonymous readers.
func (s *Store) GetPublicDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND status IN ($2, $3)`,
		id, models.DocStatusApproved, models.DocStatusProcessed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get public document %d: %w", id, err)
	}
	return doc, nil
}

// ApproveTx transitions pending|rejected -> approved inside the caller's
// transaction, clearing rejection fields. Any other starting status is a
// conflict.
func (s *Store) ApproveTx(ctx context.Context, tx pgx.Tx, id int64, moderator string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE documents SET
			status = $2,
			approved_by = $3,
			approved_at = NOW(),
			rejected_by = '',
			rejection_reason = '',
			rejected_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)`,
		id, models.DocStatusApproved, moderator, models.DocStatusPending, models.DocStatusRejected)
	if err != nil {
		return fmt.Errorf("approve document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, tx, id, "approve")
	}
	return nil
}

// Reject transitions pending|approved|processed -> rejected, stamping the
// moderator and reason. Chunk purge is the caller's follow-up.
func (s *Store) Reject(ctx context.Context, id int64, moderator, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $2,
			rejected_by = $3,
			rejection_reason = $4,
			rejected_at = NOW(),
			approved_by = '',
			approved_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6, $7)`,
		id, models.DocStatusRejected, moderator, reason,
		models.DocStatusPending, models.DocStatusApproved, models.DocStatusProcessed)
	if err != nil {
		return fmt.Errorf("reject document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflictPool(ctx, id, "reject")
	}
	return nil
}

// transitionConflict distinguishes a missing row from an illegal transition.
func (s *Store) transitionConflict(ctx context.Context, tx pgx.Tx, id int64, action string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return utils.NewError(utils.KindNotFound, "document not found")
	}
	if err != nil {
		return err
	}
	return utils.NewError(utils.KindConflict,
		fmt.Sprintf("cannot %s document in status %q", action, status))
}

func (s *Store) transitionConflictPool(ctx context.Context, id int64, action string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return utils.NewError(utils.KindNotFound, "document not found")
	}
	if err != nil {
		return err
	}
	return utils.NewError(utils.KindConflict,
		fmt.Sprintf("cannot %s document in status %q", action, status))
}

// PipelineResult carries everything the worker writes back at the end of a run.
type PipelineResult struct {
	OCRTextOriginal string
	OCRTextEnglish  string
	SearchText      string
	GeneratedTags   []string
	Summary         *string
	Embedding       []float32 // nil when the embedder failed; document stays keyword-searchable
}

// FinishProcessing stores pipeline outputs and flips approved -> processed.
// Returns false without writing when the document is no longer approved, so a
// rejected-mid-flight document keeps its rejected state and gains no artefacts.
func (s *Store) FinishProcessing(ctx context.Context, id int64, res *PipelineResult) (bool, error) {
	var emb interface{}
	if res.Embedding != nil {
		v := pgvector.NewVector(res.Embedding)
		emb = v
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $2,
			ocr_text_original = $3,
			ocr_text_english = $4,
			search_text = $5,
			generated_tags = $6,
			summary = $7,
			embedding = $8,
			extracted_text = '',
			processed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $9`,
		id, models.DocStatusProcessed, res.OCRTextOriginal, res.OCRTextEnglish,
		res.SearchText, res.GeneratedTags, res.Summary, emb, models.DocStatusApproved)
	if err != nil {
		return false, fmt.Errorf("finish processing document %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteDocument removes the row; comments and annotations cascade.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewError(utils.KindNotFound, "document not found")
	}
	return nil
}

// RecordView counts one view per (document, session) per hour. The insert and
// the counter bump are a single statement so concurrent requests cannot
// double-count; stale suppression rows are swept by the maintenance job.
func (s *Store) RecordView(ctx context.Context, id int64, sessionHash string) error {
	_, err := s.pool.Exec(ctx, `
		WITH seen AS (
			INSERT INTO view_suppressions (document_id, session_hash, seen_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (document_id, session_hash) DO UPDATE SET seen_at = NOW()
			WHERE view_suppressions.seen_at < NOW() - INTERVAL '1 hour'
			RETURNING 1
		)
		UPDATE documents SET view_count = view_count + 1
		WHERE id = $1 AND EXISTS (SELECT 1 FROM seen)`,
		id, sessionHash)
	if err != nil {
		return fmt.Errorf("record view for document %d: %w", id, err)
	}
	return nil
}

// PurgeStaleViewSuppressions drops suppression rows past the 1-hour window.
func (s *Store) PurgeStaleViewSuppressions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM view_suppressions WHERE seen_at < NOW() - INTERVAL '1 hour'`)
	if err != nil {
		return 0, fmt.Errorf("purge view suppressions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// docFilter appends country/state conditions shared by the search queries.
func docFilter(conds []string, args []interface{}, country, state string) ([]string, []interface{}) {
	if country != "" {
		args = append(args, country)
		conds = append(conds, fmt.Sprintf("country = $%d", len(args)))
	}
	if state != "" {
		args = append(args, state)
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	return conds, args
}

// RecentApproved lists publicly visible documents newest first.
func (s *Store) RecentApproved(ctx context.Context, country, state string, limit, offset int) ([]*models.Document, int, error) {
	conds := []string{"status IN ('approved', 'processed')"}
	args := []interface{}{}
	conds, args = docFilter(conds, args, country, state)
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recent documents: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recent documents: %w", err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// FullTextSearch runs the natural-language scorer over the GIN index.
// Returns up to limit matches ranked by relevance. An empty result is not an
// error; the caller unions substring matches regardless.
func (s *Store) FullTextSearch(ctx context.Context, q, country, state string, limit int) ([]*models.Document, error) {
	conds := []string{"status IN ('approved', 'processed')"}
	args := []interface{}{q}
	conds = append(conds, "fts @@ websearch_to_tsquery('simple', $1)")
	conds, args = docFilter(conds, args, country, state)

	args = append(args, limit)
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+strings.Join(conds, " AND ")+
			fmt.Sprintf(` ORDER BY ts_rank(fts, websearch_to_tsquery('simple', $1)) DESC, created_at DESC LIMIT $%d`, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// SubstringSearch is the deterministic lexical fallback: case-insensitive
// containment over title, description, OCR text, country, state and tags,
// ordered newest first.
func (s *Store) SubstringSearch(ctx context.Context, q, country, state string, limit int) ([]*models.Document, error) {
	pattern := "%" + q + "%"
	conds := []string{"status IN ('approved', 'processed')"}
	args := []interface{}{pattern}
	conds = append(conds, `(title ILIKE $1 OR description ILIKE $1 OR ocr_text_english ILIKE $1
		OR ocr_text_original ILIKE $1 OR country ILIKE $1 OR state ILIKE $1
		OR EXISTS (SELECT 1 FROM unnest(generated_tags) tag WHERE tag ILIKE $1))`)
	conds, args = docFilter(conds, args, country, state)

	args = append(args, limit)
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+strings.Join(conds, " AND ")+
			fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// DocumentEmbedding pairs a document id with its stored document-level vector.
type DocumentEmbedding struct {
	ID        int64
	Embedding []float32
}

// ApprovedEmbeddings returns up to limit publicly visible documents that carry
// a document-level embedding, newest first.
func (s *Store) ApprovedEmbeddings(ctx context.Context, limit int) ([]DocumentEmbedding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, embedding FROM documents
		WHERE status IN ('approved', 'processed') AND embedding IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load document embeddings: %w", err)
	}
	defer rows.Close()

	var out []DocumentEmbedding
	for rows.Next() {
		var id int64
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, err
		}
		out = append(out, DocumentEmbedding{ID: id, Embedding: vec.Slice()})
	}
	return out, rows.Err()
}

// DocumentsByIDs hydrates full rows for an id set, preserving no particular order.
func (s *Store) DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Document, error) {
	if len(ids) == 0 {
		return map[int64]*models.Document{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*models.Document, len(ids))
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// ApprovedStatuses reports which of the given documents are publicly visible.
// The RAG answerer uses it to drop chunks of since-rejected documents.
func (s *Store) ApprovedStatuses(ctx context.Context, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return map[int64]bool{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM documents WHERE id = ANY($1) AND status IN ('approved', 'processed')`, ids)
	if err != nil {
		return nil, fmt.Errorf("check document statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// NonVisibleDocumentsWithChunks lists document ids that still own chunks but
// are no longer publicly visible. The reconciler purges these.
func (s *Store) NonVisibleDocumentsWithChunks(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT c.document_id
		FROM document_chunks c
		LEFT JOIN documents d ON d.id = c.document_id
		WHERE d.id IS NULL OR d.status NOT IN ('approved', 'processed')`)
	if err != nil {
		return nil, fmt.Errorf("find orphaned chunks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectDocuments(rows pgx.Rows) ([]*models.Document, error) {
	var docs []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ArchiveCounts aggregates the numbers shown on the admin dashboard.
type ArchiveCounts struct {
	TotalDocuments     int64 `json:"total_documents"`
	PendingDocuments   int64 `json:"pending_documents"`
	ApprovedDocuments  int64 `json:"approved_documents"`
	ProcessedDocuments int64 `json:"processed_documents"`
	RejectedDocuments  int64 `json:"rejected_documents"`
	TotalViews         int64 `json:"total_views"`
	TotalComments      int64 `json:"total_comments"`
	AnsweredQueries    int64 `json:"answered_queries"`
}

// CountArchive gathers document, comment and query-log totals.
func (s *Store) CountArchive(ctx context.Context) (*ArchiveCounts, error) {
	var c ArchiveCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'processed'),
		       COUNT(*) FILTER (WHERE status = 'rejected'),
		       COALESCE(SUM(view_count), 0)
		FROM documents`).Scan(
		&c.TotalDocuments, &c.PendingDocuments, &c.ApprovedDocuments,
		&c.ProcessedDocuments, &c.RejectedDocuments, &c.TotalViews)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments`).Scan(&c.TotalComments); err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_query_logs`).Scan(&c.AnsweredQueries); err != nil {
		return nil, fmt.Errorf("count query logs: %w", err)
	}
	return &c, nil
}

// ListByStatus pages documents in one status for the moderation queue,
// oldest first so the backlog drains in arrival order.
func (s *Store) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Document, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents by status: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = $1
		 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents by status: %w", err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}
