package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"document-archive-platform/internal/auth"
	"document-archive-platform/utils"
)

const (
	adminEmailKey = "admin_email"
	adminJTIKey   = "admin_jti"
)

// AdminAuth guards the moderation surface. Tokens come from the
// Authorization header or the admin_token cookie and must be live in
// the revocation store.
type AdminAuth struct {
	tokens *auth.TokenService
}

func NewAdminAuth(tokens *auth.TokenService) *AdminAuth {
	return &AdminAuth{tokens: tokens}
}

func (a *AdminAuth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie("admin_token"); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "authentication token is required")
			c.Abort()
			return
		}

		claims, err := a.tokens.ValidateAdminToken(c.Request.Context(), tokenString)
		if err != nil {
			utils.RespondWithUnauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(adminEmailKey, claims.Email)
		c.Set(adminJTIKey, claims.ID)
		c.Next()
	}
}

// GetAdminEmail returns the authenticated moderator's email.
func GetAdminEmail(c *gin.Context) string {
	if v, ok := c.Get(adminEmailKey); ok {
		if email, ok := v.(string); ok {
			return email
		}
	}
	return ""
}

// GetAdminTokenID returns the JTI of the token that authenticated this
// request, for logout revocation.
func GetAdminTokenID(c *gin.Context) string {
	if v, ok := c.Get(adminJTIKey); ok {
		if jti, ok := v.(string); ok {
			return jti
		}
	}
	return ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
