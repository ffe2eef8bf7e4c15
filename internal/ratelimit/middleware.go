package ratelimit

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
)

// IPRateLimitMiddleware limits requests per client IP. Rejections are
// handed to the error handler as rate limit errors.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Enabled() {
			c.Next()
			return
		}

		result := rl.Allow(c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			retryAfter := strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds())))
			c.Header("Retry-After", retryAfter)
			_ = c.Error(apperrors.NewRateLimitError(retryAfter + "s"))
			c.Abort()
			return
		}

		c.Next()
	}
}
