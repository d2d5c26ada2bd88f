package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/config"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/queue"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/internal/vectorstore"
	"document-archive-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()

	// Connect to Postgres. EnsureSchema is idempotent, so the worker can
	// come up before the API server.
	pool, err := config.NewPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	store := catalog.NewStore(pool, cfg.EmbeddingDimension)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure catalog schema:", err)
	}
	jobQueue := jobs.NewQueue(pool, cfg.MaxActiveJobs)
	if err := jobQueue.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure job queue schema:", err)
	}
	chunkStore := vectorstore.NewStore(pool, cfg.EmbeddingDimension)
	if err := chunkStore.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure vector store schema:", err)
	}

	// Connect to MinIO
	minioClient, err := config.NewMinioClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MinIO:", err)
	}
	objects := objectstore.NewStore(minioClient, cfg.MinioBucket)
	if err := objects.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to ensure storage bucket:", err)
	}

	// Telemetry
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName+"-worker", cfg.OTLPEndpoint)
		if err != nil {
			logger.Logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Gemini is optional; the pipeline publishes documents without
	// summaries when it is missing.
	var gemini *ai.GeminiClient
	if cfg.GeminiAPIKey != "" {
		gemini, err = ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiMaxRPM,
			time.Duration(cfg.GeminiTimeout)*time.Second)
		if err != nil {
			logger.Logger.Warn("gemini client unavailable", "error", err)
			gemini = nil
		} else {
			defer gemini.Close()
		}
	}
	embedder := ai.NewEmbeddingService(cfg.EmbeddingProvider, cfg.EmbeddingServiceURL,
		cfg.EmbeddingDimension, time.Duration(cfg.EmbeddingTimeout)*time.Second, gemini)

	// Extraction and enrichment stages
	ocrClient := services.NewOCRClient(cfg.OCRServiceURL, cfg.OCREnabled,
		time.Duration(cfg.OCRTimeout)*time.Second)
	extractor := services.NewTextExtractor(ocrClient)
	translator := services.NewTranslateService(cfg.TranslateServiceURL, cfg.TranslateFallbackURL,
		time.Duration(cfg.TranslateTimeout)*time.Second)
	translator.Probe(ctx)
	spam := services.NewSpamFilter(store, 5*time.Minute)
	tagger := services.NewTaggingService(0, spam)
	summarizer := services.NewSummarizationService(gemini, cfg.SummaryMaxWords)
	chunker := services.NewChunkingService(cfg.ChunkTargetSize, cfg.ChunkOverlap)

	asynqClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient)

	pipeline := services.NewPipeline(services.PipelineDeps{
		JobQueue:   jobQueue,
		Store:      store,
		ChunkStore: chunkStore,
		Objects:    objects,
		Extractor:  extractor,
		Translator: translator,
		Tagger:     tagger,
		Summarizer: summarizer,
		Embedder:   embedder,
		Chunker:    chunker,
		Enqueuer:   enqueuer,
		Metrics:    metrics,
	}, cfg.WorkerPoolSize, time.Duration(cfg.WorkerPollMillis)*time.Millisecond)

	// asynq server handles the retried follow-up tasks: chunk purges and
	// object deletes.
	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(chunkStore, objects)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	if err := server.Start(mux); err != nil {
		log.Fatal("Failed to start task server:", err)
	}
	pipeline.Start()
	logger.Logger.Info("worker started",
		"pipeline_workers", cfg.WorkerPoolSize, "poll_millis", cfg.WorkerPollMillis)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutting down worker")

	pipeline.Stop()
	server.Stop()
	server.Shutdown()
	logger.Logger.Info("worker exited")
}
