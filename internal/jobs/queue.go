// Package jobs implements the durable processing queue on Postgres.
// Scheduling order is priority descending, then creation time ascending;
// the composite index on (status, priority DESC, created_at ASC) backs
// both claiming and position reporting.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"document-archive-platform/internal/logger"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

// failLogLimit bounds the error message length in log lines. The full
// message is still stored on the job row.
const failLogLimit = 200

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS processing_jobs (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		job_type TEXT NOT NULL DEFAULT 'process_document',
		status TEXT NOT NULL DEFAULT 'pending',
		priority INT NOT NULL DEFAULT 0,
		current_step TEXT NOT NULL DEFAULT '',
		progress_percent INT NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 3,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_schedule
		ON processing_jobs (status, priority DESC, created_at ASC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_one_active_per_document
		ON processing_jobs (document_id)
		WHERE status IN ('pending', 'processing')`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_document ON processing_jobs (document_id)`,
}

const jobColumns = `id, document_id, job_type, status, priority, current_step,
	progress_percent, error_message, retry_count, max_retries,
	created_at, started_at, completed_at, failed_at`

// Queue hands out pipeline jobs to workers. All mutation paths run single
// statements or short transactions so concurrent workers never double-claim.
type Queue struct {
	pool      *pgxpool.Pool
	maxActive int
}

// NewQueue creates a queue with the given cap on active (pending plus
// processing) jobs.
func NewQueue(pool *pgxpool.Pool, maxActive int) *Queue {
	if maxActive <= 0 {
		maxActive = 100
	}
	return &Queue{pool: pool, maxActive: maxActive}
}

// EnsureSchema creates the processing_jobs table and its indexes.
func (q *Queue) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := q.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("jobs schema: %w", err)
		}
	}
	return nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.DocumentID, &j.JobType, &j.Status, &j.Priority,
		&j.CurrentStep, &j.ProgressPercent, &j.ErrorMessage, &j.RetryCount,
		&j.MaxRetries, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.FailedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue queues a processing job for the document, beginning its own
// transaction. See EnqueueTx for the contract.
func (q *Queue) Enqueue(ctx context.Context, documentID int64, priority int) (*models.Job, bool, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue begin: %w", err)
	}
	defer tx.Rollback(ctx)

	job, created, err := q.EnqueueTx(ctx, tx, documentID, priority)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("enqueue commit: %w", err)
	}
	return job, created, nil
}

// EnqueueTx queues a processing job inside the caller's transaction so
// approval and enqueue commit or abort together. If the document already
// has an active job that job is returned with created=false and no new
// row is written. When the active-job cap is reached it returns
// utils.ErrQueueFull and the transaction must be rolled back by the caller.
func (q *Queue) EnqueueTx(ctx context.Context, tx pgx.Tx, documentID int64, priority int) (*models.Job, bool, error) {
	existing, err := scanJob(tx.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM processing_jobs
		WHERE document_id = $1 AND status IN ('pending', 'processing')
		LIMIT 1`, documentID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("enqueue lookup: %w", err)
	}

	var active int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM processing_jobs
		WHERE status IN ('pending', 'processing')`).Scan(&active); err != nil {
		return nil, false, fmt.Errorf("enqueue count: %w", err)
	}
	if active >= int64(q.maxActive) {
		return nil, false, utils.NewError(utils.KindQueueFull,
			fmt.Sprintf("queue is full (%d active jobs), retry later", active))
	}

	job, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO processing_jobs (document_id, job_type, priority, max_retries)
		VALUES ($1, $2, $3, $4)
		RETURNING `+jobColumns,
		documentID, models.JobTypeProcessDocument, priority, models.DefaultMaxRetries))
	if err != nil {
		// A concurrent enqueue for the same document loses the race on the
		// partial unique index; surface the winner instead of an error.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, false, utils.NewError(utils.KindConflict,
				"another job for this document was queued concurrently")
		}
		return nil, false, fmt.Errorf("enqueue insert: %w", err)
	}

	logger.Logger.Info("job enqueued",
		"job_id", job.ID, "document_id", documentID, "priority", priority)
	return job, true, nil
}

// Next claims the highest-priority pending job, marking it processing.
// It returns (nil, nil) when the queue has no pending work. SKIP LOCKED
// keeps concurrent workers from blocking on or double-claiming a row.
func (q *Queue) Next(ctx context.Context) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `
		WITH claimed AS (
			SELECT id FROM processing_jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE processing_jobs j
		SET status = 'processing', started_at = NOW(), progress_percent = 0, current_step = 'starting'
		FROM claimed
		WHERE j.id = claimed.id
		RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// UpdateProgress records the current step and a progress percentage,
// clamped to [0, 100]. Progress on a job that is no longer processing is
// dropped silently; the terminal state already won.
func (q *Queue) UpdateProgress(ctx context.Context, jobID int64, step string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := q.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET current_step = $2, progress_percent = $3
		WHERE id = $1 AND status = 'processing'`, jobID, step, percent)
	if err != nil {
		return fmt.Errorf("update progress for job %d: %w", jobID, err)
	}
	return nil
}

// Complete marks the job done and releases its per-document slot.
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'completed', progress_percent = 100, current_step = 'done',
		    completed_at = NOW(), error_message = ''
		WHERE id = $1 AND status = 'processing'`, jobID)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewError(utils.KindConflict, "job is not processing")
	}
	logger.Logger.Info("job completed", "job_id", jobID)
	return nil
}

// Fail records a failure. The job is re-queued while retry_count stays
// below max_retries, otherwise it lands in the terminal failed state.
// The stored error message is kept in full; log output is truncated.
func (q *Queue) Fail(ctx context.Context, jobID int64, failure string) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `
		UPDATE processing_jobs
		SET retry_count = retry_count + 1,
		    error_message = $2,
		    status = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
		    started_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE started_at END,
		    progress_percent = CASE WHEN retry_count + 1 < max_retries THEN 0 ELSE progress_percent END,
		    current_step = CASE WHEN retry_count + 1 < max_retries THEN '' ELSE current_step END,
		    failed_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE NOW() END
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns, jobID, failure))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindConflict, "job is not processing")
	}
	if err != nil {
		return nil, fmt.Errorf("fail job %d: %w", jobID, err)
	}

	logged := failure
	if len(logged) > failLogLimit {
		logged = logged[:failLogLimit]
	}
	if job.Status == models.JobStatusPending {
		logger.Logger.Warn("job failed, re-queued",
			"job_id", jobID, "retry", job.RetryCount, "max_retries", job.MaxRetries, "error", logged)
	} else {
		logger.Logger.Error("job failed permanently",
			"job_id", jobID, "retries", job.RetryCount, "error", logged)
	}
	return job, nil
}

// GetJob returns a job by id.
func (q *Queue) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindNotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", jobID, err)
	}
	return job, nil
}

// ActiveJobForDocument returns the pending or processing job for the
// document, or nil when the slot is free.
func (q *Queue) ActiveJobForDocument(ctx context.Context, documentID int64) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM processing_jobs
		WHERE document_id = $1 AND status IN ('pending', 'processing')
		LIMIT 1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for document %d: %w", documentID, err)
	}
	return job, nil
}

// Position reports the 1-based place of a pending job in claim order:
// the number of pending jobs with higher priority, or equal priority and
// earlier creation, plus one. Jobs past pending report position 0.
func (q *Queue) Position(ctx context.Context, jobID int64) (int, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status != models.JobStatusPending {
		return 0, nil
	}

	var ahead int
	err = q.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM processing_jobs
		WHERE status = 'pending'
		  AND (priority > $1 OR (priority = $1 AND created_at < $2))`,
		job.Priority, job.CreatedAt).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("queue position for job %d: %w", jobID, err)
	}
	return ahead + 1, nil
}

// Stats summarises the queue for the admin dashboard.
func (q *Queue) Stats(ctx context.Context) (*models.QueueStats, error) {
	var s models.QueueStats
	err := q.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at) FILTER (WHERE status = 'pending')), 0)
		FROM processing_jobs`).
		Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed, &s.OldestPendingAge)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &s, nil
}

// FailedJobs lists terminally failed jobs, newest failures first.
func (q *Queue) FailedJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM processing_jobs
		WHERE status = 'failed'
		ORDER BY failed_at DESC NULLS LAST, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Requeue puts a terminally failed job back in the queue with a fresh
// retry budget. Used by the admin surface.
func (q *Queue) Requeue(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', retry_count = 0, error_message = '',
		    progress_percent = 0, current_step = '',
		    started_at = NULL, completed_at = NULL, failed_at = NULL
		WHERE id = $1 AND status = 'failed'
		RETURNING `+jobColumns, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewError(utils.KindConflict, "only failed jobs can be re-queued")
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, utils.NewError(utils.KindConflict, "document already has an active job")
		}
		return nil, fmt.Errorf("requeue job %d: %w", jobID, err)
	}
	logger.Logger.Info("job re-queued by admin", "job_id", jobID)
	return job, nil
}

// ReclaimStuck returns jobs stuck in processing longer than maxAge to the
// pending state. Covers workers that died mid-job without calling Fail.
func (q *Queue) ReclaimStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', started_at = NULL, progress_percent = 0, current_step = ''
		WHERE status = 'processing' AND started_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		logger.Logger.Warn("reclaimed stuck processing jobs", "count", n)
		return n, nil
	}
	return 0, nil
}
