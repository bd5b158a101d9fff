package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript increments the counter and starts its window on the first hit.
// It returns the count and the remaining window in milliseconds.
var allowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter is a fixed window limiter shared by every instance that uses
// the same Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit"}
}

func (l *RedisLimiter) Allow(ctx context.Context, b Budget, key string) (Decision, error) {
	k := l.prefix + ":" + counterKey(b, key)

	res, err := allowScript.Run(ctx, l.client, []string{k}, b.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis allow: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := Decision{Limit: b.Limit}
	if count > b.Limit {
		d.RetryAfter = ttl
		return d, nil
	}
	d.Allowed = true
	d.Remaining = b.Limit - count
	return d, nil
}
