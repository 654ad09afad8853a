// Package ratelimit implements per-user fixed-window request counters
// backed by Redis, so limits survive restarts and hold across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is the secondary admission gate: a per-user request budget
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// RedisLimiter counts requests in fixed windows keyed by user ID. The
// increment and the window expiry run in one Lua script, so a counter can
// never exist without a TTL.
type RedisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing max requests per window
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		max:    max,
		window: window,
	}
}

// incrWithWindow bumps the counter and attaches the window expiry on the
// first hit, atomically. Separate INCR and EXPIRE calls could be split by a
// crash, leaving a counter that never resets.
var incrWithWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", userID)

	count, err := incrWithWindow.Run(ctx, l.client, []string{key}, int(l.window.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to advance rate limit counter: %w", err)
	}

	return count <= int64(l.max), nil
}
