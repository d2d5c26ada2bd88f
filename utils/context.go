package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds catalog and queue operations
	DefaultTimeout = 10 * time.Second

	// LongTimeout bounds external calls (object store, OCR, translator, LLM)
	LongTimeout = 30 * time.Second

	// ShortTimeout bounds cache lookups
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with the default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context for external calls
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout creates a context for quick cache operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
