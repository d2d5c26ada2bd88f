package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/auth"
	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/config"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/queue"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/internal/vectorstore"
	"document-archive-platform/middleware"
	"document-archive-platform/routes"
	"document-archive-platform/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()

	// Connect to Postgres and ensure the schemas. Order matters: the job
	// queue and the chunk store reference the documents table.
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

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Connect to MinIO
	minioClient, err := config.NewMinioClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MinIO:", err)
	}
	objects := objectstore.NewStore(minioClient, cfg.MinioBucket)
	if err := objects.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to ensure storage bucket:", err)
	}

	// asynq client for background follow-up tasks
	asynqClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient)

	// Telemetry
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
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

	// Gemini is optional; without it summaries stay empty and RAG answers
	// with its stock apology.
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
	} else {
		logger.Logger.Warn("GEMINI_API_KEY not set, answering and summarisation degraded")
	}
	embedder := ai.NewEmbeddingService(cfg.EmbeddingProvider, cfg.EmbeddingServiceURL,
		cfg.EmbeddingDimension, time.Duration(cfg.EmbeddingTimeout)*time.Second, gemini)

	// The API server never runs the pipeline, but health reporting covers
	// the sidecar services the worker depends on.
	ocrClient := services.NewOCRClient(cfg.OCRServiceURL, cfg.OCREnabled,
		time.Duration(cfg.OCRTimeout)*time.Second)
	translator := services.NewTranslateService(cfg.TranslateServiceURL, cfg.TranslateFallbackURL,
		time.Duration(cfg.TranslateTimeout)*time.Second)
	translator.Probe(ctx)

	tokens, err := auth.NewTokenService(cfg.AdminJWTSecret, rdb)
	if err != nil {
		log.Fatal("Failed to initialize token service:", err)
	}
	adminAuth := middleware.NewAdminAuth(tokens)

	// Services
	scanner := services.NewMalwareScanner(cfg.MalwareScanEnabled, cfg.ClamdAddr, cfg.MalwareSignatures)
	sanitizer := services.NewSanitizeService(scanner)
	uploadService := services.NewUploadService(store, objects, sanitizer, metrics, cfg.MaxFileSize)
	captcha := services.NewCaptchaVerifier(cfg.CaptchaVerifyURL, cfg.CaptchaSecret)
	limiter := services.NewRateLimiter(rdb)

	spam := services.NewSpamFilter(store, 5*time.Minute)
	if err := spam.Refresh(ctx); err != nil {
		logger.Logger.Warn("initial banned word load failed", "error", err)
	}

	searchService := services.NewSearchService(store, embedder, spam, metrics)
	ragService := services.NewRAGService(store, chunkStore, embedder, gemini, metrics,
		cfg.RAGTopK, cfg.RAGMaxContextLen)
	commentService := services.NewCommentService(store, limiter, spam, rdb, metrics,
		cfg.CommentRateWindowSecs, cfg.CommentCacheTTLSecs, cfg.MaxCommentsPerDoc)
	annotationService := services.NewAnnotationService(store, limiter, spam, rdb,
		cfg.CommentRateWindowSecs, cfg.CommentCacheTTLSecs)
	moderation := services.NewModerationService(store, jobQueue, enqueuer)

	maintenance := services.NewMaintenanceService(store, jobQueue, chunkStore, spam)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.TraceIDHeader())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.SessionContext(cfg.SessionHashSalt))
	router.Use(middleware.APIKeyCheck(cfg.UploadAPIKeys))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-API-Key", "X-Session-Token"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		postgres := "ok"
		if err := store.Health(checkCtx); err != nil {
			postgres = "unreachable"
			status = http.StatusServiceUnavailable
		}
		redisState := "ok"
		if err := rdb.Ping(checkCtx).Err(); err != nil {
			redisState = "unreachable"
			status = http.StatusServiceUnavailable
		}
		storage := "ok"
		if err := objects.Health(checkCtx); err != nil {
			storage = "unreachable"
			status = http.StatusServiceUnavailable
		}

		// OCR and translation are degradation paths for the pipeline, so
		// they are reported without flipping the endpoint to 503.
		translatorState := "ok"
		if !translator.Healthy(checkCtx) {
			translatorState = "unreachable"
		}
		ocrState := "ok"
		if !ocrClient.Enabled() {
			ocrState = "disabled"
		} else if healthy, err := ocrClient.IsHealthy(checkCtx); err != nil || !healthy {
			ocrState = "unreachable"
		}

		c.JSON(status, gin.H{
			"status":     map[bool]string{true: "healthy", false: "degraded"}[status == http.StatusOK],
			"postgres":   postgres,
			"redis":      redisState,
			"storage":    storage,
			"translator": translatorState,
			"ocr":        ocrState,
			"timestamp":  time.Now(),
		})
	})

	// Setup routes
	routes.SetupUploadRoutes(router, uploadService, captcha, rdb, cfg)
	routes.SetupDocumentRoutes(router, searchService, store, objects, jobQueue, rdb, cfg)
	routes.SetupCommentRoutes(router, commentService, annotationService)
	routes.SetupRAGRoutes(router, ragService)
	routes.SetupAdminRoutes(router, cfg, store, jobQueue, objects, moderation, commentService, spam, tokens, adminAuth)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Logger.Info("server exited")
}
