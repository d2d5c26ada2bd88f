package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/logger"
)

// RateLimiter enforces fixed windows keyed on arbitrary strings, one
// action per key per window. It fails open: when Redis is unreachable
// the action is allowed, availability over strictness.
type RateLimiter struct {
	rdb *redis.Client
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// Allow claims the window for key. The second return value is the wait
// in seconds before the next attempt may succeed; it is zero when the
// claim went through.
func (l *RateLimiter) Allow(ctx context.Context, key string, window time.Duration) (bool, int) {
	if l.rdb == nil {
		return true, 0
	}

	ok, err := l.rdb.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		logger.Logger.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true, 0
	}
	if ok {
		return true, 0
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return false, int(window.Seconds())
	}
	remaining := int(ttl.Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return false, remaining
}

// Reset releases the window for key, used when the limited action
// ultimately failed and should not burn the caller's slot.
func (l *RateLimiter) Reset(ctx context.Context, key string) {
	if l.rdb == nil {
		return
	}
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		logger.Logger.Warn("rate limiter reset failed", "key", key, "error", err)
	}
}
