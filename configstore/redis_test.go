package configstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// requires a local Redis, e.g. docker run -p 6379:6379 redis
func TestRedisGet(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run the Redis store test")
	}

	c := NewRedis(RedisOptions{Addr: addr, DialTimeout: time.Second})
	defer c.Close()

	ctx := context.Background()
	const key = "configstore-test-key"

	require.NoError(t, c.rdb.Set(ctx, key, `{"trafficGreenPercent":50}`, time.Minute).Err())
	defer c.rdb.Del(ctx, key)

	raw, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found, "stored key not found")
	require.Equal(t, `{"trafficGreenPercent":50}`, string(raw))

	_, found, err = c.Get(ctx, "configstore-test-missing")
	require.NoError(t, err)
	require.False(t, found, "missing key reported as found")
}
