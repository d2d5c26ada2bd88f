package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/queue"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/internal/vectorstore"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	searchTextWordCap = 1000
	defaultJobTimeout = 15 * time.Minute
)

// Pipeline is the processing worker pool. Each worker claims queued
// jobs and runs the stages: fetch, extract, translate, tag, summarise,
// chunk, embed, persist. Stages past extraction degrade on failure
// instead of aborting; the document still reaches processed and stays
// keyword-searchable.
type Pipeline struct {
	jobQueue   *jobs.Queue
	store      *catalog.Store
	chunkStore *vectorstore.Store
	objects    *objectstore.Store
	extractor  *TextExtractor
	translator *TranslateService
	tagger     *TaggingService
	summarizer *SummarizationService
	embedder   *ai.EmbeddingService
	chunker    *ChunkingService
	enqueuer   *queue.Enqueuer
	metrics    *telemetry.Metrics

	workers      int
	pollInterval time.Duration
	jobTimeout   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PipelineDeps bundles the collaborators of the worker pool.
type PipelineDeps struct {
	JobQueue   *jobs.Queue
	Store      *catalog.Store
	ChunkStore *vectorstore.Store
	Objects    *objectstore.Store
	Extractor  *TextExtractor
	Translator *TranslateService
	Tagger     *TaggingService
	Summarizer *SummarizationService
	Embedder   *ai.EmbeddingService
	Chunker    *ChunkingService
	Enqueuer   *queue.Enqueuer
	Metrics    *telemetry.Metrics
}

func NewPipeline(deps PipelineDeps, workers int, pollInterval time.Duration) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Pipeline{
		jobQueue:     deps.JobQueue,
		store:        deps.Store,
		chunkStore:   deps.ChunkStore,
		objects:      deps.Objects,
		extractor:    deps.Extractor,
		translator:   deps.Translator,
		tagger:       deps.Tagger,
		summarizer:   deps.Summarizer,
		embedder:     deps.Embedder,
		chunker:      deps.Chunker,
		enqueuer:     deps.Enqueuer,
		metrics:      deps.Metrics,
		workers:      workers,
		pollInterval: pollInterval,
		jobTimeout:   defaultJobTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	logger.Logger.Info("pipeline workers started",
		"workers", p.workers, "poll_interval", p.pollInterval.String())
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	logger.Logger.Info("pipeline workers stopped")
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		claimCtx, cancel := utils.WithTimeout(context.Background())
		job, err := p.jobQueue.Next(claimCtx)
		cancel()
		if err != nil {
			logger.Logger.Warn("job claim failed", "worker", id, "error", err)
			job = nil
		}
		if job == nil {
			select {
			case <-p.stopCh:
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.process(job)
	}
}

// process runs one claimed job and settles its final state. Bookkeeping
// uses a fresh context so a timed-out job can still be marked failed.
func (p *Pipeline) process(job *models.Job) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()
	ctx, span := otel.Tracer("document-pipeline").Start(ctx, "pipeline.process_document")
	span.SetAttributes(
		attribute.Int64("job.id", job.ID),
		attribute.Int64("document.id", job.DocumentID),
	)
	defer span.End()

	runErr := p.run(ctx, job)

	bookCtx, bookCancel := utils.WithTimeout(context.Background())
	defer bookCancel()

	if runErr != nil {
		span.RecordError(runErr)
		updated, err := p.jobQueue.Fail(bookCtx, job.ID, runErr.Error())
		if err != nil {
			logger.Logger.Error("job failure bookkeeping failed", "job_id", job.ID, "error", err)
			return
		}
		outcome := "retried"
		if updated.Status == models.JobStatusFailed {
			outcome = "failed"
		}
		if p.metrics != nil {
			p.metrics.RecordJob(outcome, time.Since(start).Seconds())
		}
		return
	}

	if err := p.jobQueue.Complete(bookCtx, job.ID); err != nil {
		logger.Logger.Error("job completion bookkeeping failed", "job_id", job.ID, "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.RecordJob("completed", time.Since(start).Seconds())
	}
	logger.Logger.Info("document processed",
		"job_id", job.ID, "document_id", job.DocumentID, "duration", time.Since(start).String())
}

// run executes the stages for one job. A nil return means the job is
// done, including the no-op case where the document left approved
// status while queued.
func (p *Pipeline) run(ctx context.Context, job *models.Job) error {
	doc, err := p.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status != models.DocStatusApproved {
		logger.Logger.Info("skipping job, document no longer approved",
			"job_id", job.ID, "document_id", doc.ID, "status", doc.Status)
		return nil
	}

	pdfData, err := p.fetchPDF(ctx, job, doc)
	if err != nil {
		return err
	}

	originalText, err := p.extractText(ctx, job, doc, pdfData)
	if err != nil {
		return err
	}

	englishText := p.translateText(ctx, job, doc, originalText)

	// English is the preferred text for everything downstream.
	preferred := originalText
	if englishText != "" {
		preferred = englishText
	}

	tags := p.generateTags(ctx, job, preferred)
	summary := p.summarize(ctx, job, doc, preferred)
	docEmbedding := p.indexChunks(ctx, job, doc, preferred)

	p.storeTextArtifact(ctx, doc, preferred)

	p.jobQueue.UpdateProgress(ctx, job.ID, "saving", 95)
	finStart := time.Now()
	ok, err := p.store.FinishProcessing(ctx, doc.ID, &catalog.PipelineResult{
		OCRTextOriginal: originalText,
		OCRTextEnglish:  englishText,
		SearchText:      topWords(originalText, searchTextWordCap),
		GeneratedTags:   tags,
		Summary:         summary,
		Embedding:       docEmbedding,
	})
	p.recordStage("finalise", finStart)
	if err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	if !ok {
		// Rejected while we worked: drop what the chunk stage wrote.
		logger.Logger.Warn("document left approved status mid-run, discarding artefacts",
			"document_id", doc.ID)
		if err := p.enqueuer.PurgeChunks(doc.ID); err != nil {
			logger.Logger.Warn("chunk purge enqueue failed, reconciler will catch up",
				"document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) fetchPDF(ctx context.Context, job *models.Job, doc *models.Document) ([]byte, error) {
	p.jobQueue.UpdateProgress(ctx, job.ID, "downloading", 10)
	stageStart := time.Now()
	defer p.recordStage("download", stageStart)

	rc, _, err := p.objects.GetObject(ctx, doc.FileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch stored PDF: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored PDF: %w", err)
	}
	return data, nil
}

// extractText prefers the sanitiser's side-channel text for text-born
// uploads and runs the extraction ladder otherwise.
func (p *Pipeline) extractText(ctx context.Context, job *models.Job, doc *models.Document, pdfData []byte) (string, error) {
	p.jobQueue.UpdateProgress(ctx, job.ID, "extracting_text", 30)
	stageStart := time.Now()
	defer p.recordStage("extract", stageStart)

	if text := strings.TrimSpace(doc.ExtractedText); text != "" {
		return text, nil
	}

	result, err := p.extractor.ExtractFromPDF(ctx, pdfData, doc.OriginalFilename, doc.DocumentLanguage)
	if err != nil {
		return "", fmt.Errorf("text extraction: %w", err)
	}
	logger.Logger.Info("text extracted",
		"document_id", doc.ID, "method", result.Method, "pages", result.Pages,
		"quality", result.QualityScore)
	return result.Text, nil
}

// translateText returns the English text, or "" when the document is
// already English or no usable translation came back.
func (p *Pipeline) translateText(ctx context.Context, job *models.Job, doc *models.Document, originalText string) string {
	if doc.DocumentLanguage == "english" || originalText == "" {
		return ""
	}

	p.jobQueue.UpdateProgress(ctx, job.ID, "translating", 50)
	stageStart := time.Now()
	defer p.recordStage("translate", stageStart)

	translated := p.translator.TranslateToEnglish(ctx, originalText, doc.DocumentLanguage)
	if translated == originalText {
		return ""
	}
	return translated
}

func (p *Pipeline) generateTags(ctx context.Context, job *models.Job, text string) []string {
	p.jobQueue.UpdateProgress(ctx, job.ID, "generating_tags", 60)
	stageStart := time.Now()
	defer p.recordStage("tag", stageStart)
	return p.tagger.GenerateTags(ctx, text)
}

func (p *Pipeline) summarize(ctx context.Context, job *models.Job, doc *models.Document, text string) *string {
	p.jobQueue.UpdateProgress(ctx, job.ID, "summarising", 70)
	stageStart := time.Now()
	defer p.recordStage("summarise", stageStart)
	return p.summarizer.Summarize(ctx, doc.Title, text)
}

// indexChunks chunks the preferred text, embeds the chunks, upserts
// them and trims leftovers from earlier runs. Returns the
// document-level embedding, nil when the embedder is down. Vector
// storage failures log and leave the document keyword-only.
func (p *Pipeline) indexChunks(ctx context.Context, job *models.Job, doc *models.Document, preferred string) []float32 {
	p.jobQueue.UpdateProgress(ctx, job.ID, "embedding", 85)
	stageStart := time.Now()
	defer p.recordStage("embed", stageStart)

	source := BuildChunkSource(doc.Title, doc.Description, preferred)
	chunks := p.chunker.ChunkDocument(doc, preferred)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors := p.embedder.EmbedPassages(ctx, texts)
		for i := range chunks {
			if i < len(vectors) {
				chunks[i].Embedding = vectors[i]
			}
		}

		if err := p.chunkStore.UpsertChunks(ctx, chunks); err != nil {
			logger.Logger.Error("chunk upsert failed, document stays keyword-only",
				"document_id", doc.ID, "error", err)
		} else if err := p.chunkStore.TrimChunks(ctx, doc.ID, len(chunks)); err != nil {
			logger.Logger.Warn("stale chunk trim failed",
				"document_id", doc.ID, "error", err)
		}
	}

	return p.embedder.EmbedPassage(ctx, source)
}

// storeTextArtifact keeps a compressed copy of the preferred text next
// to the PDF. Best effort, the catalog row is authoritative.
func (p *Pipeline) storeTextArtifact(ctx context.Context, doc *models.Document, preferred string) {
	fileUUID := objectstore.FileUUID(doc.FileKey)
	if fileUUID == "" || preferred == "" {
		return
	}
	if _, err := p.objects.PutTextArtifact(ctx, fileUUID, preferred); err != nil {
		logger.Logger.Warn("text artifact upload failed",
			"document_id", doc.ID, "error", err)
	}
}

func (p *Pipeline) recordStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordPipelineStage(stage, time.Since(start).Seconds())
	}
}

// topWords reduces text to its most frequent words for the search
// column, keeping the tsvector well under the index limits. Ties keep
// first-appearance order so the reduction is deterministic.
func topWords(text string, limit int) string {
	if text == "" || limit <= 0 {
		return ""
	}

	counts := make(map[string]int)
	var order []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 2 || len(w) > 50 {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	if len(order) <= limit {
		return strings.Join(order, " ")
	}

	rank := make(map[string]int, len(order))
	for i, w := range order {
		rank[w] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return rank[order[i]] < rank[order[j]]
	})
	return strings.Join(order[:limit], " ")
}
