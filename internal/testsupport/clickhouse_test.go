package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseTempTable(t *testing.T) {
	helper := NewTestClickHouse(t)
	ctx := context.Background()
	table := helper.CreateTempTable(t, "id UInt64, value String")

	require.NoError(t, helper.Client().Exec(ctx, "INSERT INTO "+table+" (id, value) VALUES (1, 'abc')"))

	var count uint64
	require.NoError(t, helper.Client().Conn().QueryRow(ctx, "SELECT count() FROM "+table).Scan(&count))
	assert.Equal(t, uint64(1), count)
}
