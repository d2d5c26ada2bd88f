package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-archive-platform/services"
	"document-archive-platform/utils"
)

// SetupRAGRoutes registers the question-answering endpoints.
func SetupRAGRoutes(router *gin.Engine, rag *services.RAGService) {
	router.POST("/rag/question", HandleQuestion(rag))
	router.POST("/rag/document-question", HandleDocumentQuestion(rag))
}

type questionRequest struct {
	Question string `json:"question" binding:"required"`
	Language string `json:"language"`
}

type documentQuestionRequest struct {
	Question   string `json:"question" binding:"required"`
	DocumentID int64  `json:"document_id" binding:"required"`
	Language   string `json:"language"`
}

// HandleQuestion answers from the whole approved archive.
func HandleQuestion(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req questionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "question is required", nil)
			return
		}

		answer, err := rag.Answer(c.Request.Context(), req.Question, nil, req.Language)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, answer)
	}
}

// HandleDocumentQuestion answers from one document's chunks only.
func HandleDocumentQuestion(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req documentQuestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "question and document_id are required", nil)
			return
		}

		answer, err := rag.Answer(c.Request.Context(), req.Question, &req.DocumentID, req.Language)
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusOK, answer)
	}
}
