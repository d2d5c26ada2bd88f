package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionHashFor(t *testing.T, remoteAddr string, headers map[string]string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var hash string
	router := gin.New()
	router.Use(SessionContext("test-salt"))
	router.GET("/", func(c *gin.Context) {
		hash = GetSessionHash(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NotEmpty(t, hash)
	return hash
}

func TestSessionContextIgnoresClientIP(t *testing.T) {
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0",
		"Accept-Language": "en-US",
		"X-Session-Token": "abc123",
	}

	first := sessionHashFor(t, "10.0.0.1:1234", headers)
	second := sessionHashFor(t, "192.168.7.9:9999", headers)
	assert.Equal(t, first, second, "the session hash never depends on the client address")
	assert.Len(t, first, 32)
}

func TestSessionContextVariesWithHeaders(t *testing.T) {
	base := map[string]string{
		"User-Agent":      "Mozilla/5.0",
		"Accept-Language": "en-US",
		"X-Session-Token": "abc123",
	}
	otherToken := map[string]string{
		"User-Agent":      "Mozilla/5.0",
		"Accept-Language": "en-US",
		"X-Session-Token": "different",
	}
	otherAgent := map[string]string{
		"User-Agent":      "curl/8.0",
		"Accept-Language": "en-US",
		"X-Session-Token": "abc123",
	}

	baseHash := sessionHashFor(t, "10.0.0.1:1234", base)
	assert.NotEqual(t, baseHash, sessionHashFor(t, "10.0.0.1:1234", otherToken))
	assert.NotEqual(t, baseHash, sessionHashFor(t, "10.0.0.1:1234", otherAgent))
}

func apiKeyAuthorizedFor(t *testing.T, configured []string, presented string) bool {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var authorized bool
	router := gin.New()
	router.Use(APIKeyCheck(configured))
	router.GET("/", func(c *gin.Context) {
		authorized = IsAPIKeyAuthorized(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if presented != "" {
		req.Header.Set("X-API-Key", presented)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)
	return authorized
}

func TestAPIKeyCheck(t *testing.T) {
	keys := []string{"alpha-key", "beta-key"}

	assert.True(t, apiKeyAuthorizedFor(t, keys, "alpha-key"))
	assert.True(t, apiKeyAuthorizedFor(t, keys, "beta-key"))
	assert.False(t, apiKeyAuthorizedFor(t, keys, "wrong-key"))
	assert.False(t, apiKeyAuthorizedFor(t, keys, ""))
	assert.False(t, apiKeyAuthorizedFor(t, nil, "alpha-key"))
}
