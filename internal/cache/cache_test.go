package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewFallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1" // nothing listens here

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IsAvailable() {
		t.Fatal("expected cache to report unavailable when redis is unreachable")
	}
}

func TestDisabledCacheGetSetAreNoOps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.SetNowPlaying(ctx, NowPlaying{ID: "t1"}); err != nil {
		t.Fatalf("SetNowPlaying on disabled cache should be a no-op, got error: %v", err)
	}
	if _, ok := c.GetNowPlaying(ctx); ok {
		t.Fatal("expected cache miss on disabled cache")
	}
	if _, ok := c.GetOfflineQueue(ctx); ok {
		t.Fatal("expected cache miss on disabled cache")
	}
}

func TestDefaultConfigTTLs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.OfflineQueueTTL != 60*time.Second {
		t.Fatalf("expected 60s offline queue TTL, got %v", cfg.OfflineQueueTTL)
	}
	if cfg.NowPlayingTTL != 10*time.Second {
		t.Fatalf("expected 10s now-playing TTL, got %v", cfg.NowPlayingTTL)
	}
}
