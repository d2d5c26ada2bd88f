package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-archive-platform/utils"
)

// RequestSizeLimit rejects oversized bodies before multipart parsing
// buffers them. Per-file limits are still enforced downstream; this is
// the outer bound for the whole request.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				string(utils.KindInputInvalid),
				"request body exceeds maximum size",
				gin.H{
					"max_bytes": maxSize,
					"received":  c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
