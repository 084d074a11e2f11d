package redis

import (
	"context"
	"testing"

	"medease-realtime/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	addr := mr.Addr()
	client := NewRedisClient(&config.RedisConfig{Addr: addr, PoolSize: 4})
	defer Close(client)

	assert.Equal(t, 4, client.Options().PoolSize)
	require.NoError(t, Ping(context.Background(), client))

	mr.Close()
	err = Ping(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
