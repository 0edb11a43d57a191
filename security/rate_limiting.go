package security

import (
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles queue joins per identity with a fixed Redis
// INCR window, so a misbehaving client cannot flood a doctor's queue.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
	}
}

// JoinRateLimit is middleware for the join endpoint. Authenticated
// callers are keyed by user id, anonymous ones by IP.
func (r *RateLimiter) JoinRateLimit() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		identity := e.RealIP()
		if e.Auth != nil {
			identity = fmt.Sprintf("user:%s", e.Auth.Id)
		}

		key := fmt.Sprintf("ratelimit:join:%s", identity)
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble should not block patients from joining.
			return e.Next()
		}
		if count == 1 {
			r.redis.Expire(ctx, key, r.window)
		}

		if count > r.limit {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}
