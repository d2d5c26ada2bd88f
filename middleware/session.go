package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"document-archive-platform/utils"
)

const (
	sessionHashKey   = "session_hash"
	apiKeyAuthorized = "api_key_authorized"
)

// SessionContext derives the anonymous session hash from browser-level
// fingerprint headers. The client IP is deliberately excluded from the
// input; two requests with identical headers share a session.
func SessionContext(salt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := utils.SessionHash(salt,
			c.GetHeader("User-Agent"),
			c.GetHeader("Accept-Language"),
			c.GetHeader("X-Session-Token"),
		)
		c.Set(sessionHashKey, hash)
		c.Next()
	}
}

// GetSessionHash returns the session hash derived for this request.
func GetSessionHash(c *gin.Context) string {
	if v, ok := c.Get(sessionHashKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// APIKeyCheck marks requests carrying a configured X-API-Key value.
// The flag lifts the captcha and the upload bucket limit.
func APIKeyCheck(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-API-Key")
		if presented != "" {
			for _, key := range keys {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
					c.Set(apiKeyAuthorized, true)
					break
				}
			}
		}
		c.Next()
	}
}

// IsAPIKeyAuthorized reports whether this request presented a valid key.
func IsAPIKeyAuthorized(c *gin.Context) bool {
	return c.GetBool(apiKeyAuthorized)
}
