package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

// testQueue connects to the database named by TEST_DATABASE_URL and
// starts every test from an empty queue. Tests are skipped when no
// database is configured.
func testQueue(t *testing.T) (*Queue, *pgxpool.Pool, *catalog.Store) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := catalog.NewStore(pool, 8)
	require.NoError(t, store.EnsureSchema(ctx))

	q := NewQueue(pool, 50)
	require.NoError(t, q.EnsureSchema(ctx))

	_, err = pool.Exec(ctx, `DELETE FROM processing_jobs`)
	require.NoError(t, err)
	return q, pool, store
}

func createTestDocument(t *testing.T, store *catalog.Store, title string) int64 {
	t.Helper()
	id, err := store.CreateDocument(context.Background(), &models.Document{
		Title:            title,
		Country:          "Testland",
		OriginalFilename: "upload.pdf",
		ContentType:      "application/pdf",
		FileKey:          fmt.Sprintf("documents/%s.pdf", title),
		DocumentLanguage: "english",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Pool().Exec(context.Background(), `DELETE FROM documents WHERE id = $1`, id)
	})
	return id
}

func TestEnqueueDeduplicatesPerDocument(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()
	docID := createTestDocument(t, store, "dedupe")

	job, created, err := q.Enqueue(ctx, docID, 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobTypeProcessDocument, job.JobType)
	assert.Equal(t, models.DefaultMaxRetries, job.MaxRetries)
	assert.Nil(t, job.StartedAt)

	dup, created, err := q.Enqueue(ctx, docID, 5)
	require.NoError(t, err)
	assert.False(t, created, "an active job blocks a second enqueue")
	assert.Equal(t, job.ID, dup.ID)

	pos, err := q.Position(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestEnqueueQueueFull(t *testing.T) {
	_, pool, store := testQueue(t)
	ctx := context.Background()

	small := NewQueue(pool, 2)
	for i := 0; i < 2; i++ {
		docID := createTestDocument(t, store, fmt.Sprintf("fill-%d", i))
		_, _, err := small.Enqueue(ctx, docID, 0)
		require.NoError(t, err)
	}

	extra := createTestDocument(t, store, "overflow")
	_, _, err := small.Enqueue(ctx, extra, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrQueueFull))
}

func TestNextClaimsByPriorityThenAge(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()

	lowID := createTestDocument(t, store, "low")
	highID := createTestDocument(t, store, "high")

	low, _, err := q.Enqueue(ctx, lowID, 0)
	require.NoError(t, err)
	high, _, err := q.Enqueue(ctx, highID, 5)
	require.NoError(t, err)

	first, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high.ID, first.ID, "priority beats arrival order")
	assert.Equal(t, models.JobStatusProcessing, first.Status)
	assert.Equal(t, "starting", first.CurrentStep)
	assert.NotNil(t, first.StartedAt)

	second, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.ID, second.ID)

	empty, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty, "an empty queue claims nothing")
}

func TestProgressAndComplete(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()
	docID := createTestDocument(t, store, "lifecycle")

	queued, _, err := q.Enqueue(ctx, docID, 0)
	require.NoError(t, err)
	claimed, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, queued.ID, claimed.ID)

	require.NoError(t, q.UpdateProgress(ctx, claimed.ID, "ocr", 40))
	job, err := q.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "ocr", job.CurrentStep)
	assert.Equal(t, 40, job.ProgressPercent)

	require.NoError(t, q.Complete(ctx, claimed.ID))
	job, err = q.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercent)
	assert.NotNil(t, job.CompletedAt)

	err = q.Complete(ctx, claimed.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConflict), "completing twice is a conflict")

	pos, err := q.Position(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "finished jobs have no queue position")
}

func TestFailRetriesThenLandsFailed(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()
	docID := createTestDocument(t, store, "retries")

	queued, _, err := q.Enqueue(ctx, docID, 0)
	require.NoError(t, err)

	for attempt := 1; attempt < models.DefaultMaxRetries; attempt++ {
		claimed, err := q.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		failed, err := q.Fail(ctx, claimed.ID, "ocr sidecar timeout")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, failed.Status, "attempt %d re-queues", attempt)
		assert.Equal(t, attempt, failed.RetryCount)
		assert.Nil(t, failed.StartedAt)
		assert.Equal(t, 0, failed.ProgressPercent)
		assert.Equal(t, "", failed.CurrentStep)
	}

	claimed, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	final, err := q.Fail(ctx, claimed.ID, "ocr sidecar timeout")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status, "the retry budget is spent")
	assert.Equal(t, models.DefaultMaxRetries, final.RetryCount)
	assert.NotNil(t, final.FailedAt)
	assert.Equal(t, "ocr sidecar timeout", final.ErrorMessage)

	_, err = q.Fail(ctx, queued.ID, "again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConflict), "only processing jobs can fail")

	requeued, err := q.Requeue(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.RetryCount, "an admin requeue resets the retry budget")
	assert.Equal(t, "", requeued.ErrorMessage)
	assert.Nil(t, requeued.FailedAt)

	_, err = q.Requeue(ctx, queued.ID)
	require.Error(t, err, "only failed jobs can be re-queued")
}

func TestPositionOrder(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()

	firstID := createTestDocument(t, store, "pos-first")
	secondID := createTestDocument(t, store, "pos-second")
	urgentID := createTestDocument(t, store, "pos-urgent")

	first, _, err := q.Enqueue(ctx, firstID, 0)
	require.NoError(t, err)
	second, _, err := q.Enqueue(ctx, secondID, 0)
	require.NoError(t, err)
	urgent, _, err := q.Enqueue(ctx, urgentID, 9)
	require.NoError(t, err)

	pos, err := q.Position(ctx, urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "high priority jumps the line")

	pos, err = q.Position(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = q.Position(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
}

func TestActiveJobForDocument(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()
	docID := createTestDocument(t, store, "active")

	none, err := q.ActiveJobForDocument(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, none)

	queued, _, err := q.Enqueue(ctx, docID, 0)
	require.NoError(t, err)
	active, err := q.ActiveJobForDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, queued.ID, active.ID)

	claimed, err := q.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.ID))

	released, err := q.ActiveJobForDocument(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, released, "completion frees the per-document slot")
}

func TestGetJobNotFound(t *testing.T) {
	q, _, _ := testQueue(t)
	_, err := q.GetJob(context.Background(), 987654321)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestStats(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()

	waiting := createTestDocument(t, store, "stats-waiting")
	running := createTestDocument(t, store, "stats-running")
	_, _, err := q.Enqueue(ctx, running, 5)
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, waiting, 0)
	require.NoError(t, err)
	_, err = q.Next(ctx)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
	assert.EqualValues(t, 1, stats.Processing)
	assert.GreaterOrEqual(t, stats.OldestPendingAge, 0.0)
}

func TestReclaimStuck(t *testing.T) {
	q, _, store := testQueue(t)
	ctx := context.Background()
	docID := createTestDocument(t, store, "stuck")

	_, _, err := q.Enqueue(ctx, docID, 0)
	require.NoError(t, err)
	claimed, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := q.ReclaimStuck(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "fresh jobs stay claimed")

	time.Sleep(20 * time.Millisecond)
	n, err = q.ReclaimStuck(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err := q.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
}
