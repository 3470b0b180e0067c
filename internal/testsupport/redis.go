package testsupport

import (
	"context"
	"testing"

	"finresearch/internal/adapters/config"
	redisclient "finresearch/internal/adapters/redis"
)

// NewRedisClient connects to the integration Redis and flushes its database
// before and after the test.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redisclient.Client {
	t.Helper()

	client, err := redisclient.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	if err := client.Client().FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Client().FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}

// NewTestRedis creates a client from the integration environment
func NewTestRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	return NewRedisClient(t, LoadDatabaseConfigsFromEnv(t).Redis)
}
