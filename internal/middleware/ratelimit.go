package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quayside/tradeledger/internal/cache"
	"github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/logger"
	"github.com/quayside/tradeledger/pkg/metrics"
	"github.com/quayside/tradeledger/pkg/response"
)

// RateLimit bounds requests per (client IP, action) within a fixed
// window backed by the shared counter store. Rejected requests get a
// 429 with a Retry-After hint for the remainder of the window.
func RateLimit(store cache.CounterStore, action string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := action + "|" + c.ClientIP()
		count, ttl, err := store.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			// A broken counter backend must not take the endpoint down.
			logger.WithModule("ratelimit").Warn("counter store unavailable",
				zap.String("action", action),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > int64(limit) {
			metrics.RateLimitRejections.WithLabelValues(action).Inc()
			retryAfter := int(ttl.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			response.Error(c, errors.NewRateLimited(retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}
