/*
cache.go - Short-TTL stats cache

PURPOSE:
  Dashboard stats queries aggregate over the whole orders table and the
  dashboard polls them aggressively. A short-TTL byte cache in front of
  the stats handlers absorbs that read load. Redis when REDIS_ADDR is
  configured, an always-miss noop otherwise; handler code is identical
  either way.

INVALIDATION:
  None. Entries simply expire. The TTL is short enough that a completed
  sync shows up within a minute.
*/
package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a byte-oriented get/set cache with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// =============================================================================
// NOOP
// =============================================================================

// Noop is the cache used when no Redis is configured. Every read
// misses and every write succeeds without storing anything.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*Noop) Close() error                                             { return nil }

// =============================================================================
// REDIS
// =============================================================================

// Redis backs the cache with a Redis instance.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the given Redis address.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client}
}

// Ping verifies connectivity.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}
