package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/pkg/response"
)

// RateLimiter counts side-effecting requests per client IP in fixed,
// clock-aligned windows kept in redis. A nil client disables limiting.
type RateLimiter struct {
	redis *redis.Client
	now   func() time.Time
	log   zerolog.Logger
}

func NewRateLimiter(redisClient *redis.Client, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis: redisClient,
		now:   time.Now,
		log:   log.With().Str("component", "ratelimit").Logger(),
	}
}

// window is one counting bucket for a scope and client.
type window struct {
	key      string
	resetsAt time.Time
}

func (rl *RateLimiter) window(scope, client string, size time.Duration) window {
	start := rl.now().Truncate(size)
	return window{
		key:      fmt.Sprintf("ratelimit:%s:%s:%d", scope, client, start.Unix()),
		resetsAt: start.Add(size),
	}
}

// hit increments the bucket and sets its expiry in one round trip.
func (rl *RateLimiter) hit(ctx context.Context, w window) (int64, error) {
	var incr *redis.IntCmd
	_, err := rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, w.key)
		pipe.ExpireAt(ctx, w.key, w.resetsAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Limit allows maxRequests per window for each client IP under scope.
func (rl *RateLimiter) Limit(scope string, maxRequests int, size time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}

		w := rl.window(scope, c.IP(), size)
		count, err := rl.hit(c.UserContext(), w)
		if err != nil {
			// Fail open.
			rl.log.Warn().Err(err).Str("scope", scope).Msg("rate limit check failed")
			return c.Next()
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(maxRequests) {
			retry := int(w.resetsAt.Sub(rl.now()).Seconds()) + 1
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			rl.log.Info().Str("scope", scope).Str("ip", c.IP()).Int64("count", count).Msg("rate limited")
			return response.RateLimited(c)
		}
		return c.Next()
	}
}

// PipelineLimit covers pipeline starts and review submissions.
func (rl *RateLimiter) PipelineLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("pipeline", maxPerHour, time.Hour)
}

// ExportLimit covers bulk downloads and export jobs.
func (rl *RateLimiter) ExportLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("export", maxPerHour, time.Hour)
}
