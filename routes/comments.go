package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-archive-platform/middleware"
	"document-archive-platform/models"
	"document-archive-platform/services"
	"document-archive-platform/utils"
)

// SetupCommentRoutes registers the anonymous comment and annotation
// endpoints.
func SetupCommentRoutes(router *gin.Engine, comments *services.CommentService, annotations *services.AnnotationService) {
	router.POST("/documents/:id/comments", HandleCreateComment(comments))
	router.GET("/documents/:id/comments", HandleListComments(comments))
	router.DELETE("/comments/:id", HandleDeleteComment(comments))
	router.POST("/comments/:id/flag", HandleFlagComment(comments))

	router.POST("/documents/:id/annotations", HandleCreateAnnotation(annotations))
	router.GET("/documents/:id/annotations", HandleListAnnotations(annotations))
	router.DELETE("/annotations/:id", HandleDeleteAnnotation(annotations))
}

type createCommentRequest struct {
	CommentText     string `json:"comment_text" binding:"required"`
	ParentCommentID *int64 `json:"parent_comment_id"`
}

func HandleCreateComment(comments *services.CommentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req createCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "comment_text is required", nil)
			return
		}

		comment, err := comments.Create(c.Request.Context(),
			documentID, req.ParentCommentID, req.CommentText, middleware.GetSessionHash(c))
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

func HandleListComments(comments *services.CommentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		tree, err := comments.List(c.Request.Context(), documentID, c.Query("sort_order"))
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"comments": tree})
	}
}

// HandleDeleteComment is the anonymous path: only the originating
// session may delete, enforced by the session hash.
func HandleDeleteComment(comments *services.CommentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		commentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		err := comments.Delete(c.Request.Context(), commentID, middleware.GetSessionHash(c))
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
	}
}

func HandleFlagComment(comments *services.CommentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		commentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		comment, err := comments.Flag(c.Request.Context(), commentID)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"flag_count": comment.FlagCount,
			"hidden":     comment.Status == models.CommentStatusFlagged,
		})
	}
}

type createAnnotationRequest struct {
	PageNumber      int     `json:"page_number" binding:"required"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Width           float64 `json:"width" binding:"required"`
	Height          float64 `json:"height" binding:"required"`
	HighlightedText string  `json:"highlighted_text"`
	AnnotationNote  string  `json:"annotation_note"`
}

func HandleCreateAnnotation(annotations *services.AnnotationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req createAnnotationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "page_number, width and height are required", nil)
			return
		}

		annotation, err := annotations.Create(c.Request.Context(), &models.Annotation{
			DocumentID:      documentID,
			PageNumber:      req.PageNumber,
			X:               req.X,
			Y:               req.Y,
			Width:           req.Width,
			Height:          req.Height,
			HighlightedText: req.HighlightedText,
			AnnotationNote:  req.AnnotationNote,
			SessionHash:     middleware.GetSessionHash(c),
		})
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusCreated, annotation)
	}
}

func HandleListAnnotations(annotations *services.AnnotationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID, ok := pathID(c, "id")
		if !ok {
			return
		}
		list, err := annotations.List(c.Request.Context(), documentID)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"annotations": list})
	}
}

func HandleDeleteAnnotation(annotations *services.AnnotationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		annotationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		err := annotations.Delete(c.Request.Context(), annotationID, middleware.GetSessionHash(c))
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "annotation deleted"})
	}
}
