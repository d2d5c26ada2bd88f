package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies failures independently of their wire encoding.
type ErrorKind string

const (
	KindInputInvalid        ErrorKind = "input_invalid"
	KindSecurityRejected    ErrorKind = "security_rejected"
	KindRateLimited         ErrorKind = "rate_limited"
	KindNotFound            ErrorKind = "not_found"
	KindQueueFull           ErrorKind = "queue_full"
	KindConflict            ErrorKind = "conflict"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInternal            ErrorKind = "internal"
)

// ArchiveError carries a stable error kind plus a user-facing message.
// RetryAfter is only meaningful for KindRateLimited.
type ArchiveError struct {
	Kind       ErrorKind
	Message    string
	Details    interface{}
	RetryAfter int // seconds, rate-limit responses only
	Err        error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Is matches any ArchiveError of the same kind, so callers can write
// errors.Is(err, utils.ErrQueueFull).
func (e *ArchiveError) Is(target error) bool {
	var ae *ArchiveError
	if errors.As(target, &ae) {
		return e.Kind == ae.Kind
	}
	return false
}

// Sentinel values for errors.Is checks.
var (
	ErrInputInvalid        = &ArchiveError{Kind: KindInputInvalid, Message: "invalid input"}
	ErrSecurityRejected    = &ArchiveError{Kind: KindSecurityRejected, Message: "rejected for security reasons"}
	ErrRateLimited         = &ArchiveError{Kind: KindRateLimited, Message: "rate limit exceeded"}
	ErrNotFound            = &ArchiveError{Kind: KindNotFound, Message: "not found"}
	ErrQueueFull           = &ArchiveError{Kind: KindQueueFull, Message: "processing queue is full"}
	ErrConflict            = &ArchiveError{Kind: KindConflict, Message: "conflicting state"}
	ErrUpstreamUnavailable = &ArchiveError{Kind: KindUpstreamUnavailable, Message: "upstream service unavailable"}
)

// NewError builds an ArchiveError of the given kind.
func NewError(kind ErrorKind, message string) *ArchiveError {
	return &ArchiveError{Kind: kind, Message: message}
}

// WrapError attaches a cause to a new ArchiveError.
func WrapError(kind ErrorKind, message string, err error) *ArchiveError {
	return &ArchiveError{Kind: kind, Message: message, Err: err}
}

// RateLimitError reports the remaining wait in seconds.
func RateLimitError(message string, retryAfter int) *ArchiveError {
	return &ArchiveError{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindInputInvalid:
		return http.StatusBadRequest
	case KindSecurityRejected:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindQueueFull:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retry_after_seconds,omitempty"`
}

// RespondWithArchiveError maps any error to the standard JSON error shape.
// Non-ArchiveError values become internal errors with a generic message.
func RespondWithArchiveError(c *gin.Context, err error) {
	var ae *ArchiveError
	if !errors.As(err, &ae) {
		ae = &ArchiveError{Kind: KindInternal, Message: "internal server error", Err: err}
	}

	status := statusForKind(ae.Kind)
	if ae.Kind == KindRateLimited && ae.RetryAfter > 0 {
		c.Header("Retry-After", fmt.Sprintf("%d", ae.RetryAfter))
	}

	c.JSON(status, ErrorResponse{
		ErrorCode:  string(ae.Kind),
		Message:    ae.Message,
		Details:    ae.Details,
		RetryAfter: ae.RetryAfter,
	})
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, string(KindInputInvalid), message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, string(KindNotFound), message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, string(KindInternal), message, details)
}
