package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/vectorstore"
)

const (
	spamRefreshInterval      = 5 * time.Minute
	suppressionPurgeInterval = 1 * time.Hour
	reclaimInterval          = 10 * time.Minute
	reconcileInterval        = 15 * time.Minute

	stuckJobAge = 30 * time.Minute
)

// MaintenanceService owns the periodic housekeeping: spam filter
// refresh, view suppression purge, stuck job reclaim and the chunk
// reconciler that sweeps vectors of no-longer-visible documents.
type MaintenanceService struct {
	scheduler  *gocron.Scheduler
	store      *catalog.Store
	jobQueue   *jobs.Queue
	chunkStore *vectorstore.Store
	spam       *SpamFilter
}

func NewMaintenanceService(store *catalog.Store, jobQueue *jobs.Queue,
	chunkStore *vectorstore.Store, spam *SpamFilter) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &MaintenanceService{
		scheduler:  s,
		store:      store,
		jobQueue:   jobQueue,
		chunkStore: chunkStore,
		spam:       spam,
	}
}

// Start registers the jobs and runs the scheduler in the background.
func (m *MaintenanceService) Start() error {
	schedule := []struct {
		tag      string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"spam-refresh", spamRefreshInterval, m.refreshSpamFilter},
		{"suppression-purge", suppressionPurgeInterval, m.purgeViewSuppressions},
		{"job-reclaim", reclaimInterval, m.reclaimStuckJobs},
		{"chunk-reconcile", reconcileInterval, m.reconcileChunks},
	}

	for _, job := range schedule {
		run := job.run
		tag := job.tag
		_, err := m.scheduler.Every(job.interval).Tag(tag).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := run(ctx); err != nil {
				logger.Logger.Warn("maintenance job failed", "job", tag, "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	m.scheduler.StartAsync()
	logger.Logger.Info("maintenance scheduler started", "jobs", len(schedule))
	return nil
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

func (m *MaintenanceService) refreshSpamFilter(ctx context.Context) error {
	return m.spam.Refresh(ctx)
}

func (m *MaintenanceService) purgeViewSuppressions(ctx context.Context) error {
	purged, err := m.store.PurgeStaleViewSuppressions(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		logger.Logger.Info("view suppressions purged", "count", purged)
	}
	return nil
}

func (m *MaintenanceService) reclaimStuckJobs(ctx context.Context) error {
	reclaimed, err := m.jobQueue.ReclaimStuck(ctx, stuckJobAge)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Logger.Warn("stuck jobs re-queued", "count", reclaimed)
	}
	return nil
}

// reconcileChunks purges vectors whose document was rejected or
// deleted after processing. This is the safety net behind the purge
// tasks, so a lost enqueue heals within one interval.
func (m *MaintenanceService) reconcileChunks(ctx context.Context) error {
	ids, err := m.store.NonVisibleDocumentsWithChunks(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		purged, err := m.chunkStore.PurgeDocument(ctx, id)
		if err != nil {
			logger.Logger.Warn("chunk reconcile purge failed", "document_id", id, "error", err)
			continue
		}
		logger.Logger.Info("orphaned chunks purged", "document_id", id, "chunks", purged)
	}
	return nil
}
