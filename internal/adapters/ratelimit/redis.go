package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"finresearch/pkg/errors"
)

// tokenBucketScript refills and consumes atomically.
// KEYS[1] bucket key, ARGV rate (tokens/s), burst, now (s). Returns 1 when allowed.
const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if not tokens then
    tokens = burst
    last_update = now
end

tokens = math.min(burst, tokens + math.max(0, now - last_update) * rate)

local allowed = 0
if tokens >= 1.0 then
    tokens = tokens - 1.0
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, 3600)
return allowed
`

// RedisLimiter is a token bucket shared through Redis by every replica
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	key    string
	rate   float64 // tokens per second
	burst  int
	cfg    Config
}

// NewRedisLimiter creates a distributed limiter keyed by cfg.Name
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		key:    "rate_limit:" + cfg.Name,
		rate:   cfg.ReqPerMinute / 60.0,
		burst:  burstOf(cfg),
		cfg:    cfg,
	}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / l.rate)
	for {
		allowed, err := l.tryAcquire(ctx)
		if err != nil {
			return errors.Wrapf(err, "redis rate limiter %s", l.cfg.Name)
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(errors.ErrRateLimitExceeded, "rate limiter %s: %v", l.cfg.Name, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// Allow denies when Redis cannot be reached
func (l *RedisLimiter) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	allowed, err := l.tryAcquire(ctx)
	return err == nil && allowed
}

func (l *RedisLimiter) Limit() float64 {
	return l.cfg.ReqPerMinute
}

// Reset clears the shared bucket
func (l *RedisLimiter) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

func (l *RedisLimiter) tryAcquire(ctx context.Context) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := l.script.Run(ctx, l.client, []string{l.key}, l.rate, l.burst, now).Int()
	if err != nil {
		return false, errors.Wrap(err, "token bucket script failed")
	}
	return result == 1, nil
}
