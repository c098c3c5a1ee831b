// Package rediscache provides a small read-through cache for task status
// snapshots. Task state lives in PostgreSQL; the cache only absorbs the
// polling traffic that clients generate while a generation task is in
// flight.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when the key is absent or the cache is
// disabled.
var ErrCacheMiss = errors.New("cache miss")

// Config holds the cache connection settings. An empty Addr disables the
// cache entirely.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache stores JSON-serialized values under task-scoped keys. The zero
// TTL disables expiry, which is never what a status cache wants, so the
// constructor enforces a floor.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache client, or a disabled cache when addr is empty.
// A disabled cache misses on every read and drops every write, so
// callers need no nil checks.
func New(cfg Config, logger *slog.Logger) *Cache {
	c := &Cache{
		ttl:    cfg.TTL,
		logger: logger.With("component", "rediscache"),
	}
	if c.ttl <= 0 {
		c.ttl = 30 * time.Second
	}
	if cfg.Addr == "" {
		return c
	}
	c.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return c
}

// Enabled reports whether a backing Redis connection is configured.
func (c *Cache) Enabled() bool {
	return c.client != nil
}

func taskKey(taskID int64) string {
	return fmt.Sprintf("task:status:%d", taskID)
}

// GetTask unmarshals the cached snapshot for the task into dest.
// Returns ErrCacheMiss when absent; any Redis failure is also reported
// as a miss after logging, since the store is always available as the
// source of truth.
func (c *Cache) GetTask(ctx context.Context, taskID int64, dest any) error {
	if c.client == nil {
		return ErrCacheMiss
	}

	raw, err := c.client.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, treating as miss",
				"task_id", taskID,
				"error", err)
		}
		return ErrCacheMiss
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cached task snapshot is malformed, evicting",
			"task_id", taskID,
			"error", err)
		c.DeleteTask(ctx, taskID)
		return ErrCacheMiss
	}
	return nil
}

// SetTask stores a snapshot for the task with the configured TTL.
// Failures are logged and swallowed; caching is best-effort.
func (c *Cache) SetTask(ctx context.Context, taskID int64, value any) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to marshal task snapshot for cache",
			"task_id", taskID,
			"error", err)
		return
	}

	if err := c.client.Set(ctx, taskKey(taskID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed",
			"task_id", taskID,
			"error", err)
	}
}

// DeleteTask evicts the snapshot for the task. Called on every state
// transition so pollers never read a stale terminal status.
func (c *Cache) DeleteTask(ctx context.Context, taskID int64) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, taskKey(taskID)).Err(); err != nil {
		c.logger.Warn("cache eviction failed",
			"task_id", taskID,
			"error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
