/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-backed cache for the offline-queue sample
// and the now-playing handover value, with a circuit breaker that disables
// caching entirely once Redis starts erroring rather than let every
// request pay a failing round trip.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTLs for the two cached values.
const (
	DefaultOfflineQueueTTL = 60 * time.Second
	DefaultNowPlayingTTL   = 10 * time.Second
)

// Key prefixes for Redis cache entries.
const (
	KeyOfflineQueue = "driftcast:cache:offline_queue"
	KeyNowPlaying   = "driftcast:cache:now_playing"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OfflineQueueTTL time.Duration
	NowPlayingTTL   time.Duration

	// DisableOnError, if true, disables caching for the process lifetime
	// after the first Redis error, so degraded Redis never adds latency
	// to every request on the hot path.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		OfflineQueueTTL: DefaultOfflineQueueTTL,
		NowPlayingTTL:   DefaultNowPlayingTTL,
		DisableOnError:  true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance, falling back to a disabled no-op cache
// if Redis is unreachable at startup.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// OfflineQueueEntry is one sampled catalogue track offered for offline
// download via GET /api/offline-queue.
type OfflineQueueEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	DownloadURL string `json:"download_url"`
}

// GetOfflineQueue retrieves the cached offline-queue sample.
func (c *Cache) GetOfflineQueue(ctx context.Context) ([]OfflineQueueEntry, bool) {
	var entries []OfflineQueueEntry
	found, err := c.get(ctx, KeyOfflineQueue, &entries)
	if err != nil || !found {
		return nil, false
	}
	return entries, true
}

// SetOfflineQueue caches a freshly sampled offline-queue.
func (c *Cache) SetOfflineQueue(ctx context.Context, entries []OfflineQueueEntry) error {
	return c.set(ctx, KeyOfflineQueue, entries, c.config.OfflineQueueTTL)
}

// NowPlaying is the handover value published to new subscribers of the
// now-playing websocket so they don't wait for the next track change to
// learn what's currently on air.
type NowPlaying struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// GetNowPlaying retrieves the cached now-playing handover value.
func (c *Cache) GetNowPlaying(ctx context.Context) (*NowPlaying, bool) {
	var np NowPlaying
	found, err := c.get(ctx, KeyNowPlaying, &np)
	if err != nil || !found {
		return nil, false
	}
	return &np, true
}

// SetNowPlaying caches the current now-playing value.
func (c *Cache) SetNowPlaying(ctx context.Context, np NowPlaying) error {
	return c.set(ctx, KeyNowPlaying, np, c.config.NowPlayingTTL)
}
