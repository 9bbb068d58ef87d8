package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pinAttemptsKeyPrefix = "kiosk:pin-attempts:"

// PINAttemptLimiter counts failed PIN lookups per kiosk and blocks further lookups once
// the maximum is reached, until the window expires.
type PINAttemptLimiter interface {
	// Exceeded reports whether key reached the maximum; retryAfter is the remaining block time.
	Exceeded(ctx context.Context, key string) (exceeded bool, retryAfter time.Duration, err error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// incrScript increments the counter and starts the window on the first failure.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type redisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

var _ PINAttemptLimiter = (*redisLimiter)(nil)

func NewPINAttemptLimiter(rdb *redis.Client, max int, window time.Duration) PINAttemptLimiter {
	return &redisLimiter{rdb: rdb, max: max, window: window}
}

func (l *redisLimiter) key(k string) string {
	return pinAttemptsKeyPrefix + k
}

func (l *redisLimiter) Exceeded(ctx context.Context, key string) (bool, time.Duration, error) {
	n, err := l.rdb.Get(ctx, l.key(key)).Int()
	if err != nil {
		if err == redis.Nil {
			return false, 0, nil
		}
		return false, 0, errors.Wrap(err, "getting attempts")
	}
	if n < l.max {
		return false, 0, nil
	}
	ttl, err := l.rdb.PTTL(ctx, l.key(key)).Result()
	if err != nil {
		return true, l.window, errors.Wrap(err, "getting attempts ttl")
	}
	if ttl < 0 {
		ttl = l.window
	}
	return true, ttl, nil
}

func (l *redisLimiter) RecordFailure(ctx context.Context, key string) error {
	err := incrScript.Run(ctx, l.rdb, []string{l.key(key)}, l.window.Milliseconds()).Err()
	return errors.Wrap(err, "recording failed attempt")
}

func (l *redisLimiter) Reset(ctx context.Context, key string) error {
	return errors.Wrap(l.rdb.Del(ctx, l.key(key)).Err(), "resetting attempts")
}

// NopLimiter never blocks.
type NopLimiter struct{}

var _ PINAttemptLimiter = NopLimiter{}

func (NopLimiter) Exceeded(context.Context, string) (bool, time.Duration, error) { return false, 0, nil }
func (NopLimiter) RecordFailure(context.Context, string) error                  { return nil }
func (NopLimiter) Reset(context.Context, string) error                          { return nil }
