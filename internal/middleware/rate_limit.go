package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimit = 10
	rateLimitWindow  = time.Minute
)

// RateLimit caps requests per client IP in fixed one-minute windows kept in
// Redis. Keys look like "rl:<prefix>:<ip>".
func RateLimit(cache *redis.Client, prefix string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultRateLimit
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		ctx := c.UserContext()
		key := "rl:" + prefix + ":" + c.IP()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		// A counter without a TTL would lock the client out for good, so a
		// failed Expire on the first hit is repaired on the next one.
		if cnt == 1 || cache.TTL(ctx, key).Val() == -1 {
			cache.Expire(ctx, key, rateLimitWindow)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
