// Package cache wraps the Redis client used to cache immutable registry reads.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"docregistry/internal/config"
)

type Redis struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedis(cfg config.RedisConfig, log *slog.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &Redis{rdb: rdb, log: log}
}

func (c *Redis) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis ping failed", slog.Any("error", err))
		return err
	}
	return nil
}

func (c *Redis) Close() {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Close(); err != nil {
		c.log.Warn("redis close failed", slog.Any("error", err))
	}
}

// Get returns nil, nil when key is absent.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", slog.String("key", key))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.log.Debug("cache hit", slog.String("key", key), slog.Int("bytes", len(b)))
	return b, nil
}

// Set stores val; a non-positive ttl keeps the key forever.
func (c *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, val, ttl).Err()
}
