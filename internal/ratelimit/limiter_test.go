package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllowsUpToMaxRequestsPerWindow(t *testing.T) {
	cfg := Config{WindowMs: 1000, MaxRequests: 3, Enabled: true}
	limiter := NewLimiter(cfg, nil)
	defer limiter.Close()

	now := time.UnixMilli(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}

	result, err := limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("expected 4th request in window to be rejected")
	}
	if result.RetryAfter <= 0 {
		t.Fatal("expected positive retry-after")
	}
}

func TestLimiterResetsOnNewWindow(t *testing.T) {
	cfg := Config{WindowMs: 1000, MaxRequests: 1, Enabled: true}
	limiter := NewLimiter(cfg, nil)
	defer limiter.Close()

	ctx := context.Background()
	first := time.UnixMilli(0)
	result, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat", first)
	if !result.Allowed {
		t.Fatal("expected first request allowed")
	}

	stillBlocked, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat", first.Add(500*time.Millisecond))
	if stillBlocked.Allowed {
		t.Fatal("expected second request in same window to be rejected")
	}

	nextWindow := time.UnixMilli(1000)
	result, _ = limiter.Allow(ctx, "user-1", "/agent-api/chat", nextWindow)
	if !result.Allowed {
		t.Fatal("expected request in next window to be allowed")
	}
}

func TestLimiterKeysAreIsolatedByUserAndRoute(t *testing.T) {
	cfg := Config{WindowMs: 1000, MaxRequests: 1, Enabled: true}
	limiter := NewLimiter(cfg, nil)
	defer limiter.Close()

	ctx := context.Background()
	now := time.UnixMilli(0)

	if r, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat", now); !r.Allowed {
		t.Fatal("expected user-1 chat request allowed")
	}
	if r, _ := limiter.Allow(ctx, "user-2", "/agent-api/chat", now); !r.Allowed {
		t.Fatal("expected different user to have its own bucket")
	}
	if r, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat-sync", now); !r.Allowed {
		t.Fatal("expected different route to have its own bucket")
	}
}

func TestLimiterDisabledAlwaysAllows(t *testing.T) {
	cfg := Config{WindowMs: 1000, MaxRequests: 1, Enabled: false}
	limiter := NewLimiter(cfg, nil)
	defer limiter.Close()

	ctx := context.Background()
	now := time.UnixMilli(0)
	for i := 0; i < 5; i++ {
		result, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
		if !result.Allowed {
			t.Fatalf("request %d: expected disabled limiter to always allow", i)
		}
	}
}

func TestWindowKeyUsesNullByteSeparator(t *testing.T) {
	key := windowKey("user-1", "/agent-api/chat", 42)
	want := "user-1\x00/agent-api/chat\x0042"
	if key != want {
		t.Fatalf("windowKey() = %q, want %q", key, want)
	}
}

type fakeStore struct {
	counts map[string]int64
}

func (f *fakeStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestLimiterUsesKeyedStoreWhenProvided(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{WindowMs: 1000, MaxRequests: 2, Enabled: true}
	limiter := NewLimiter(cfg, store)
	defer limiter.Close()

	ctx := context.Background()
	now := time.UnixMilli(0)

	limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
	limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
	result, _ := limiter.Allow(ctx, "user-1", "/agent-api/chat", now)
	if result.Allowed {
		t.Fatal("expected third request to be rejected via shared store")
	}
	if len(store.counts) != 1 {
		t.Fatalf("expected one counted key, got %d", len(store.counts))
	}
}
