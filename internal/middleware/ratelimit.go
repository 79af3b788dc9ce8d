package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/grievance-api/internal/models"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
	"github.com/noah-isme/grievance-api/pkg/response"
)

// RateLimitConfig tunes the keyed counter limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RateLimit is a fixed-window counter keyed per actor (or client IP for
// unauthenticated calls), backed by Redis with a TTL so the state is shared
// across instances instead of living in process-wide maps. When Redis is
// unreachable the middleware fails open.
func RateLimit(client *redis.Client, cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s", limiterKey(c))
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(ctx, key, cfg.Window).Err(); err != nil {
				logger.Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
			}
		}
		if count > int64(cfg.RequestsPerWindow) {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

func limiterKey(c *gin.Context) string {
	if claimsValue, exists := c.Get(ContextUserKey); exists {
		if claims, ok := claimsValue.(*models.JWTClaims); ok && claims.ActorID != "" {
			return "actor:" + claims.ActorID
		}
	}
	return "ip:" + c.ClientIP()
}
