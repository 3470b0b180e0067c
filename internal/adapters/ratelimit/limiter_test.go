package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finresearch/pkg/errors"
)

func TestLocalLimiter_Burst(t *testing.T) {
	l := NewLocalLimiter(Config{Name: "serpapi", ReqPerMinute: 60, Burst: 2})

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Equal(t, 60.0, l.Limit())
}

func TestLocalLimiter_WaitHonoursContext(t *testing.T) {
	l := NewLocalLimiter(Config{Name: "gemini", ReqPerMinute: 6, Burst: 1})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
}

func TestNew(t *testing.T) {
	assert.IsType(t, NoOp{}, New(Config{Name: "off"}, nil))
	assert.IsType(t, &LocalLimiter{}, New(Config{Name: "local", ReqPerMinute: 30}, nil))

	noop := NoOp{}
	assert.NoError(t, noop.Wait(context.Background()))
	assert.True(t, noop.Allow())
	assert.Equal(t, -1.0, noop.Limit())
}

func TestBurstDefaultsToTenPercent(t *testing.T) {
	assert.Equal(t, 6, burstOf(Config{ReqPerMinute: 60}))
	assert.Equal(t, 1, burstOf(Config{ReqPerMinute: 5}))
	assert.Equal(t, 3, burstOf(Config{ReqPerMinute: 60, Burst: 3}))
}

func TestRedisLimiter_SharedBucket(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cfg := Config{Name: "test:shared", ReqPerMinute: 60, Burst: 2}
	a := NewRedisLimiter(rdb, cfg)
	b := NewRedisLimiter(rdb, cfg)
	require.NoError(t, a.Reset(context.Background()))

	assert.True(t, a.Allow())
	assert.True(t, b.Allow())
	assert.False(t, a.Allow())

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	assert.Greater(t, time.Since(start), 500*time.Millisecond)
}
