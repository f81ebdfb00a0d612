package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// slidingWindowLua implements an atomic sliding-window counter over a sorted
// set: trim entries older than the window, count the remainder, and admit the
// request only when the count is below the limit. Returns {allowed, count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, now .. '-' .. count)
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// waitPollInterval is the fixed polling interval used by Wait.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter is a sliding-window limiter over Redis sorted sets. One script
// round trip decides admission, so concurrent callers on different
// connections cannot double-spend the same window slot.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// Allow reports whether a request for key fits under limit within the given
// window, counting the request when admitted. Timestamps are kept in
// microseconds so sub-millisecond bursts still order correctly.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	keys := []string{"ratelimit:" + key}
	args := []any{time.Now().UnixMicro(), window.Microseconds(), limit}

	res, err := rl.script.Run(ctx, rl.rdb, keys, args...).Int64Slice()
	switch {
	case err != nil:
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	case len(res) < 2:
		return false, fmt.Errorf("redis: rate limit allow %s: short script reply (%d values)", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until a request for key is admitted at a budget of one request
// per second, polling between attempts. It returns the context error when ctx
// is cancelled first. Callers needing custom budgets should loop over Allow
// themselves.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	tick := time.NewTicker(waitPollInterval)
	defer tick.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-tick.C:
		}
	}
}
