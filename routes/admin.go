package routes

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"document-archive-platform/internal/auth"
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

const adminCookieName = "admin_token"

func SetupAdminRoutes(
	router *gin.Engine,
	cfg *config.Config,
	store *catalog.Store,
	jobQueue *jobs.Queue,
	objects *objectstore.Store,
	moderation *services.ModerationService,
	comments *services.CommentService,
	spam *services.SpamFilter,
	tokens *auth.TokenService,
	adminAuth *middleware.AdminAuth,
) {
	// -------------------------
	// Login (outside the guard)
	// -------------------------
	router.POST("/admin/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "email and password are required", nil)
			return
		}
		if cfg.AdminPasswordHash == "" {
			utils.RespondWithUnauthorized(c, "admin login is not configured")
			return
		}

		emailOK := subtle.ConstantTimeCompare(
			[]byte(strings.ToLower(strings.TrimSpace(req.Email))),
			[]byte(strings.ToLower(cfg.AdminEmail))) == 1
		passwordOK := utils.CheckPassword(req.Password, cfg.AdminPasswordHash)
		if !emailOK || !passwordOK {
			utils.RespondWithUnauthorized(c, "invalid credentials")
			return
		}

		token, expiresAt, err := tokens.IssueAdminToken(c.Request.Context(), cfg.AdminEmail)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to issue token", nil)
			return
		}

		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, token, int(time.Until(expiresAt).Seconds()), "/", "", cfg.GinMode == "release", true)
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": expiresAt,
			"email":      cfg.AdminEmail,
		})
	})

	admin := router.Group("/admin")
	admin.Use(adminAuth.Require())

	admin.POST("/logout", func(c *gin.Context) {
		if jti := middleware.GetAdminTokenID(c); jti != "" {
			if err := tokens.RevokeToken(c.Request.Context(), jti); err != nil {
				logger.Logger.Warn("token revocation failed", "error", err)
			}
		}
		c.SetCookie(adminCookieName, "", -1, "/", "", cfg.GinMode == "release", true)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	// -------------------------
	// Dashboard
	// -------------------------
	admin.GET("/stats", func(c *gin.Context) {
		stats, err := moderation.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// -------------------------
	// Moderation
	// -------------------------
	admin.GET("/documents", func(c *gin.Context) {
		status := c.DefaultQuery("status", models.DocStatusPending)
		switch status {
		case models.DocStatusPending, models.DocStatusApproved, models.DocStatusProcessed, models.DocStatusRejected:
		default:
			utils.RespondWithBadRequest(c, "status must be pending, approved, processed or rejected", nil)
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		docs, total, err := store.ListByStatus(c.Request.Context(), status, perPage, (page-1)*perPage)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"total":     total,
			"page":      page,
			"per_page":  perPage,
		})
	})

	admin.GET("/documents/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		doc, err := store.GetDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		job, err := jobQueue.ActiveJobForDocument(c.Request.Context(), id)
		if err != nil {
			logger.Logger.Warn("active job lookup failed", "document_id", id, "error", err)
		}

		resp := gin.H{"document": doc, "active_job": job}
		// Pending documents are not publicly downloadable yet, so hand the
		// moderator a direct time-limited link to the stored PDF.
		if downloadURL, err := objects.PresignedGetURL(c.Request.Context(), doc.FileKey); err == nil {
			resp["download_url"] = downloadURL
		} else {
			logger.Logger.Warn("presigned url failed", "document_id", id, "error", err)
		}
		c.JSON(http.StatusOK, resp)
	})

	admin.POST("/documents/:id/approve", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Priority int `json:"priority"`
		}
		_ = c.ShouldBindJSON(&req) // body is optional, default priority 0
		if req.Priority < 0 {
			req.Priority = 0
		}

		job, err := moderation.Approve(c.Request.Context(), id, middleware.GetAdminEmail(c), req.Priority)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		position, err := jobQueue.Position(c.Request.Context(), job.ID)
		if err != nil {
			logger.Logger.Warn("queue position lookup failed", "job_id", job.ID, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"job": job, "queue_position": position})
	})

	admin.POST("/documents/:id/reject", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "reason is required", nil)
			return
		}

		if err := moderation.Reject(c.Request.Context(), id, middleware.GetAdminEmail(c), req.Reason); err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "document rejected"})
	})

	admin.DELETE("/documents/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := moderation.Delete(c.Request.Context(), id); err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
	})

	// -------------------------
	// Job queue
	// -------------------------
	admin.GET("/jobs/failed", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		failed, err := jobQueue.FailedJobs(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": failed, "count": len(failed)})
	})

	admin.GET("/jobs/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		job, err := jobQueue.GetJob(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		position, err := jobQueue.Position(c.Request.Context(), id)
		if err != nil {
			logger.Logger.Warn("queue position lookup failed", "job_id", id, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"job": job, "queue_position": position})
	})

	admin.POST("/jobs/:id/requeue", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		job, err := jobQueue.Requeue(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": job})
	})

	// -------------------------
	// Banned words
	// -------------------------
	admin.GET("/banned-words", func(c *gin.Context) {
		words, err := store.ListBannedWords(c.Request.Context())
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"banned_words": words, "count": len(words)})
	})

	admin.POST("/banned-words", func(c *gin.Context) {
		var req struct {
			Word string `json:"word" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "word is required", nil)
			return
		}
		word, err := store.AddBannedWord(c.Request.Context(), req.Word)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		spam.Invalidate()
		c.JSON(http.StatusCreated, word)
	})

	admin.DELETE("/banned-words/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := store.RemoveBannedWord(c.Request.Context(), id); err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		spam.Invalidate()
		c.JSON(http.StatusOK, gin.H{"message": "banned word removed"})
	})

	// -------------------------
	// Comment moderation
	// -------------------------
	admin.DELETE("/comments/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		// Empty session hash skips the ownership check.
		if err := comments.Delete(c.Request.Context(), id, ""); err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
	})
}
