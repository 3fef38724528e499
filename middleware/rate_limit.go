package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"helpnet/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration. The counter lives in
// Redis so limits hold across instances; with Redis down the limiter fails
// open.
type RateLimitConfig struct {
	Redis     *redis.Client
	Requests  int
	Window    time.Duration
	KeyPrefix string
}

// RateLimit limits per authenticated user, falling back to client IP
// before authentication runs.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}

	return func(c *gin.Context) {
		if config.Redis == nil {
			c.Next()
			return
		}

		identity := utils.GetUserID(c)
		if identity == "" {
			identity = c.ClientIP()
		}
		key := fmt.Sprintf("%s:%s", config.KeyPrefix, identity)

		ctx := c.Request.Context()
		count, err := config.Redis.Incr(ctx, key).Result()
		if err != nil {
			logrus.Warnf("Rate limit check failed: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			config.Redis.Expire(ctx, key, config.Window)
		}

		remaining := config.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > config.Requests {
			utils.ErrorResponse(c, http.StatusTooManyRequests, utils.ErrCodeRateLimit, "Rate limit exceeded", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
