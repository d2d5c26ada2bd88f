package services

import (
	"context"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/queue"
	"document-archive-platform/models"
)

// ModerationService drives admin decisions over documents. Approval and
// job creation commit in one transaction; clean-up after reject and
// delete goes through retried background tasks so a temporarily missing
// broker never blocks the decision itself.
type ModerationService struct {
	store    *catalog.Store
	jobQueue *jobs.Queue
	enqueuer *queue.Enqueuer
}

func NewModerationService(store *catalog.Store, jobQueue *jobs.Queue, enqueuer *queue.Enqueuer) *ModerationService {
	return &ModerationService{store: store, jobQueue: jobQueue, enqueuer: enqueuer}
}

// Approve flips the document to approved and enqueues its processing
// job atomically. A full queue rolls back the approval too, so a
// document is never approved without a job.
func (s *ModerationService) Approve(ctx context.Context, documentID int64, moderator string, priority int) (*models.Job, error) {
	tx, err := s.store.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.ApproveTx(ctx, tx, documentID, moderator); err != nil {
		return nil, err
	}
	job, created, err := s.jobQueue.EnqueueTx(ctx, tx, documentID, priority)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Logger.Info("document approved",
		"document_id", documentID, "moderator", moderator, "job_id", job.ID, "job_created", created)
	return job, nil
}

// Reject marks the document rejected. When artefacts from an earlier
// processing run exist, a purge task removes its chunks; the periodic
// reconciler covers the case where that enqueue fails.
func (s *ModerationService) Reject(ctx context.Context, documentID int64, moderator, reason string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.Reject(ctx, documentID, moderator, reason); err != nil {
		return err
	}

	if doc.Status == models.DocStatusProcessed {
		if err := s.enqueuer.PurgeChunks(documentID); err != nil {
			logger.Logger.Warn("chunk purge enqueue failed, reconciler will catch up",
				"document_id", documentID, "error", err)
		}
	}
	logger.Logger.Info("document rejected",
		"document_id", documentID, "moderator", moderator, "reason", reason)
	return nil
}

// Delete removes the document row, then hands chunk and object removal
// to background tasks. Comments and annotations cascade in the catalog.
func (s *ModerationService) Delete(ctx context.Context, documentID int64) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	if err := s.enqueuer.PurgeChunks(documentID); err != nil {
		logger.Logger.Warn("chunk purge enqueue failed, reconciler will catch up",
			"document_id", documentID, "error", err)
	}
	if doc.FileKey != "" {
		if err := s.enqueuer.DeleteObjects(documentID, objectstore.ArtifactKeys(doc.FileKey)); err != nil {
			logger.Logger.Warn("object delete enqueue failed",
				"document_id", documentID, "file_key", doc.FileKey, "error", err)
		}
	}
	logger.Logger.Info("document deleted", "document_id", documentID)
	return nil
}

// AdminStats is the dashboard aggregate: archive totals plus the live
// state of the job queue.
type AdminStats struct {
	Archive *catalog.ArchiveCounts `json:"archive"`
	Queue   *models.QueueStats     `json:"queue"`
}

func (s *ModerationService) Stats(ctx context.Context) (*AdminStats, error) {
	archive, err := s.store.CountArchive(ctx)
	if err != nil {
		return nil, err
	}
	queueStats, err := s.jobQueue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminStats{Archive: archive, Queue: queueStats}, nil
}
