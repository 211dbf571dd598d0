// Package cache holds the Redis-backed listing cache used by the message service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/uww-saigusa/messageboard/internal/domain"
)

const defaultPrefix = "board:messages:"

// RedisPages caches listing pages under a generation counter. Invalidate bumps
// the generation so every older page stops being addressed and ages out by TTL.
type RedisPages struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisPages dials Redis and returns a page cache.
func NewRedisPages(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisPages, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisPagesWithClient(client, ttl, logger), nil
}

// NewRedisPagesWithClient wraps an existing client.
func NewRedisPagesWithClient(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisPages {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPages{
		client:  client,
		logger:  logger,
		prefix:  defaultPrefix,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
	}
}

// GetPage returns a cached page. Any Redis failure is a miss.
func (c *RedisPages) GetPage(ctx context.Context, skip, limit int) ([]domain.Message, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gen, err := c.generation(ctx)
	if err != nil {
		c.logRedisError("get generation", err)
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.pageKey(gen, skip, limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logRedisError("get page", err)
		}
		return nil, false
	}
	var messages []domain.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		c.logRedisError("decode page", err)
		return nil, false
	}
	return messages, true
}

// SetPage stores a page under the current generation.
func (c *RedisPages) SetPage(ctx context.Context, skip, limit int, messages []domain.Message) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gen, err := c.generation(ctx)
	if err != nil {
		c.logRedisError("get generation", err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		c.logRedisError("encode page", err)
		return
	}
	if err := c.client.Set(ctx, c.pageKey(gen, skip, limit), payload, c.ttl).Err(); err != nil {
		c.logRedisError("set page", err)
	}
}

// Invalidate retires every cached page.
func (c *RedisPages) Invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.logRedisError("incr generation", err)
	}
}

// Close releases the Redis client.
func (c *RedisPages) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *RedisPages) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisPages) generationKey() string {
	return c.prefix + "generation"
}

func (c *RedisPages) pageKey(gen int64, skip, limit int) string {
	return fmt.Sprintf("%sg%d:%d:%d", c.prefix, gen, skip, limit)
}

func (c *RedisPages) logRedisError(op string, err error) {
	c.logger.Error("redis page cache error", "op", op, "error", err)
}
