package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/config"
	"document-archive-platform/internal/jobs"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/middleware"
	"document-archive-platform/models"
	"document-archive-platform/services"
	"document-archive-platform/utils"
)

// SetupDocumentRoutes registers the public read surface.
func SetupDocumentRoutes(router *gin.Engine, searchService *services.SearchService,
	store *catalog.Store, objects *objectstore.Store, jobQueue *jobs.Queue,
	rdb *redis.Client, cfg *config.Config) {

	router.GET("/search", HandleSearch(searchService))
	router.GET("/document/:id", HandleGetDocument(searchService, store))
	router.GET("/download/:id",
		middleware.DownloadBucketLimiter(rdb, cfg.UploadRateWindowSecs),
		HandleDownload(store, objects))
	router.GET("/jobs/:id", HandleJobStatus(jobQueue))
}

// HandleSearch serves keyword, semantic and hybrid queries.
func HandleSearch(searchService *services.SearchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		response, err := searchService.Search(c.Request.Context(),
			c.Query("q"), c.Query("country"), c.Query("state"),
			page, perPage, c.Query("search_type"))
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

// HandleGetDocument returns one approved document in the search shape
// and counts the view, suppressed to once per session per hour.
func HandleGetDocument(searchService *services.SearchService, store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		doc, err := searchService.PublicDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}

		sessionHash := middleware.GetSessionHash(c)
		go func() {
			ctx, cancel := utils.WithTimeout(context.Background())
			defer cancel()
			if err := store.RecordView(ctx, id, sessionHash); err != nil {
				logger.Logger.Warn("view recording failed", "document_id", id, "error", err)
			}
		}()

		c.JSON(http.StatusOK, doc)
	}
}

// HandleDownload streams the stored PDF for language=original, or the
// extracted text as UTF-8 for english and the document's own language.
func HandleDownload(store *catalog.Store, objects *objectstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		doc, err := store.GetPublicDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}

		language := c.DefaultQuery("language", "original")
		switch {
		case language == "original":
			rc, size, err := objects.GetObject(c.Request.Context(), doc.FileKey)
			if err != nil {
				utils.RespondWithArchiveError(c, err)
				return
			}
			defer rc.Close()
			c.DataFromReader(http.StatusOK, size, "application/pdf", rc, map[string]string{
				"Content-Disposition": fmt.Sprintf(`attachment; filename="document_%d.pdf"`, doc.ID),
			})

		case language == "english":
			text := doc.EnglishText()
			if text == "" && doc.DocumentLanguage == "english" {
				// The pipeline keeps a compressed copy of the text next
				// to the PDF; serve that when the catalog row no longer
				// carries it. Untranslated documents stay a 404 here,
				// their artifact is not English.
				artifact, err := objects.GetTextArtifact(c.Request.Context(),
					objectstore.FileUUID(doc.FileKey))
				switch {
				case err == nil:
					text = artifact
				case !errors.Is(err, utils.ErrNotFound):
					logger.Logger.Warn("text artifact fetch failed",
						"document_id", doc.ID, "error", err)
				}
			}
			serveTextAttachment(c, doc.ID, "english", text)

		case language == doc.DocumentLanguage:
			serveTextAttachment(c, doc.ID, language, doc.OCRTextOriginal)

		default:
			utils.RespondWithBadRequest(c, "unsupported download language", gin.H{
				"available": []string{"original", "english", doc.DocumentLanguage},
			})
		}
	}
}

// HandleJobStatus lets an uploader poll processing progress for a job id
// returned by the upload endpoints. The public shape carries progress and
// queue position but never the failure detail, which stays on the admin
// surface.
func HandleJobStatus(jobQueue *jobs.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		job, err := jobQueue.GetJob(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}

		resp := gin.H{
			"id":               job.ID,
			"document_id":      job.DocumentID,
			"status":           job.Status,
			"current_step":     job.CurrentStep,
			"progress_percent": job.ProgressPercent,
			"retry_count":      job.RetryCount,
			"max_retries":      job.MaxRetries,
			"created_at":       job.CreatedAt,
			"started_at":       job.StartedAt,
			"completed_at":     job.CompletedAt,
		}
		if job.Status == models.JobStatusPending {
			if pos, err := jobQueue.Position(c.Request.Context(), job.ID); err == nil {
				resp["queue_position"] = pos
			} else {
				logger.Logger.Warn("queue position lookup failed", "job_id", job.ID, "error", err)
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func serveTextAttachment(c *gin.Context, documentID int64, language, text string) {
	if text == "" {
		utils.RespondWithArchiveError(c, utils.NewError(utils.KindNotFound,
			fmt.Sprintf("no %s text available for this document", language)))
		return
	}
	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="document_%d_%s.txt"`, documentID, language))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// pathID parses the numeric id path parameter, responding 400 itself
// when the value is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		utils.RespondWithBadRequest(c, "invalid id", nil)
		return 0, false
	}
	return id, true
}
