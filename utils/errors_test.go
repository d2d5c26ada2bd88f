package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForKind(t *testing.T) {
	cases := map[ErrorKind]int{
		KindInputInvalid:        http.StatusBadRequest,
		KindSecurityRejected:    http.StatusBadRequest,
		KindRateLimited:         http.StatusTooManyRequests,
		KindNotFound:            http.StatusNotFound,
		KindQueueFull:           http.StatusServiceUnavailable,
		KindConflict:            http.StatusConflict,
		KindUpstreamUnavailable: http.StatusBadGateway,
		KindInternal:            http.StatusInternalServerError,
		ErrorKind("unmapped"):   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(kind), "kind %s", kind)
	}
}

func TestArchiveErrorMatchesByKind(t *testing.T) {
	err := WrapError(KindQueueFull, "queue is full", errors.New("42 active"))

	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.False(t, errors.Is(err, ErrNotFound))

	// Matching survives further wrapping.
	wrapped := fmt.Errorf("approve: %w", err)
	assert.True(t, errors.Is(wrapped, ErrQueueFull))

	// The cause stays reachable.
	assert.EqualError(t, errors.Unwrap(err), "42 active")
}

func TestRespondWithArchiveErrorRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithArchiveError(c, RateLimitError("please wait", 30))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(KindRateLimited), resp.ErrorCode)
	assert.Equal(t, "please wait", resp.Message)
	assert.Equal(t, 30, resp.RetryAfter)
}

func TestRespondWithArchiveErrorHidesInternals(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithArchiveError(c, errors.New("pq: connection refused on 10.0.0.3"))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(KindInternal), resp.ErrorCode)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}
