package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"finresearch/pkg/errors"
)

// Limiter throttles calls to a paid upstream API
type Limiter interface {
	// Wait blocks until a call may proceed. It fails with
	// errors.ErrRateLimitExceeded when ctx ends first.
	Wait(ctx context.Context) error

	// Allow reports whether a call may proceed now, consuming a token if so
	Allow() bool

	// Limit returns the configured rate in requests per minute (-1 when unlimited)
	Limit() float64
}

// Config describes one limiter
type Config struct {
	Name         string
	ReqPerMinute float64
	Burst        int
}

// New builds a limiter for cfg. With a Redis client the bucket is shared by
// every replica; without one it is local to the process. A non-positive
// rate disables limiting.
func New(cfg Config, rdb *redis.Client) Limiter {
	if cfg.ReqPerMinute <= 0 {
		return NoOp{}
	}
	if rdb != nil {
		return NewRedisLimiter(rdb, cfg)
	}
	return NewLocalLimiter(cfg)
}

func burstOf(cfg Config) int {
	if cfg.Burst > 0 {
		return cfg.Burst
	}
	// 10% of the per-minute rate
	return max(int(cfg.ReqPerMinute/10), 1)
}

// LocalLimiter is an in-process token bucket
type LocalLimiter struct {
	limiter *rate.Limiter
	cfg     Config
}

// NewLocalLimiter creates an in-process token bucket limiter
func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.ReqPerMinute/60.0), burstOf(cfg)),
		cfg:     cfg,
	}
}

func (l *LocalLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(errors.ErrRateLimitExceeded, "rate limiter %s: %v", l.cfg.Name, err)
	}
	return nil
}

func (l *LocalLimiter) Allow() bool {
	return l.limiter.Allow()
}

func (l *LocalLimiter) Limit() float64 {
	return l.cfg.ReqPerMinute
}

// NoOp never blocks
type NoOp struct{}

func (NoOp) Wait(context.Context) error { return nil }
func (NoOp) Allow() bool                { return true }
func (NoOp) Limit() float64             { return -1 }
