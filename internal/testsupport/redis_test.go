package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClientIsCleanedBetweenTests(t *testing.T) {
	client := NewTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "integration-key", map[string]string{"v": "value"}, 0))

	var got map[string]string
	require.NoError(t, client.Get(ctx, "integration-key", &got))
	assert.Equal(t, "value", got["v"])
}
