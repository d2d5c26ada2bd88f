package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/logger"
	"document-archive-platform/utils"
)

// The anonymous write limiters key on the current time bucket alone,
// never on the caller: one upload (or original download) per window
// across all anonymous traffic. This is a privacy property of the
// platform, not a per-client quota.

// UploadBucketLimiter admits one anonymous upload per window. Callers
// authorised via API key skip it.
func UploadBucketLimiter(rdb *redis.Client, windowSecs int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAPIKeyAuthorized(c) {
			c.Next()
			return
		}
		if !claimBucket(c.Request.Context(), rdb, "upload_bucket", windowSecs) {
			respondBucketLimited(c, "an upload was already accepted in this window", windowSecs)
			return
		}
		c.Next()
	}
}

// DownloadBucketLimiter admits one original-PDF download per window.
// Text variants are not limited.
func DownloadBucketLimiter(rdb *redis.Client, windowSecs int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.DefaultQuery("language", "original") != "original" {
			c.Next()
			return
		}
		if !claimBucket(c.Request.Context(), rdb, "download_bucket", windowSecs) {
			respondBucketLimited(c, "a download was already served in this window", windowSecs)
			return
		}
		c.Next()
	}
}

// claimBucket takes the current window's slot. Redis being down fails
// open, matching the platform's availability-first policy.
func claimBucket(ctx context.Context, rdb *redis.Client, prefix string, windowSecs int) bool {
	if rdb == nil {
		return true
	}
	bucket := utils.TimeBucket(time.Now(), windowSecs)
	key := fmt.Sprintf("%s:%d", prefix, bucket)

	ok, err := rdb.SetNX(ctx, key, 1, time.Duration(windowSecs)*time.Second).Result()
	if err != nil {
		logger.Logger.Warn("bucket limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	return ok
}

func respondBucketLimited(c *gin.Context, message string, windowSecs int) {
	remaining := utils.SecondsUntilNextBucket(time.Now(), windowSecs)
	utils.RespondWithArchiveError(c, utils.RateLimitError(
		fmt.Sprintf("%s, try again in %d seconds", message, remaining), remaining))
	c.Abort()
}
