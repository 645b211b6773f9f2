package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configure the Redis backed configuration client.
type RedisOptions struct {
	// Addr is the host:port of the Redis instance.
	Addr string

	// Password for the Redis instance, optional.
	Password string

	// DB selects the Redis database, defaults to 0.
	DB int

	// DialTimeout is the max time.Duration to dial a new connection.
	DialTimeout time.Duration

	// ReadTimeout for Redis socket reads.
	ReadTimeout time.Duration

	// WriteTimeout for Redis socket writes.
	WriteTimeout time.Duration
}

// RedisClient reads configuration items from Redis keys. Operators of
// self-hosted installs flip the configuration with a single SET.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedis creates a Redis backed configuration client.
func NewRedis(o RedisOptions) *RedisClient {
	return &RedisClient{
		rdb: redis.NewClient(&redis.Options{
			Addr:         o.Addr,
			Password:     o.Password,
			DB:           o.DB,
			DialTimeout:  o.DialTimeout,
			ReadTimeout:  o.ReadTimeout,
			WriteTimeout: o.WriteTimeout,
		}),
	}
}

// Get reads one key. A missing key yields found=false.
func (c *RedisClient) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return json.RawMessage(value), true, nil
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
