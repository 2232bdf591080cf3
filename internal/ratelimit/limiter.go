// Package ratelimit implements the sidecar's fixed-window request limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config configures fixed-window rate limiting behavior.
type Config struct {
	// WindowMs is the width of each rate limit window in milliseconds.
	WindowMs int64 `yaml:"window_ms"`
	// MaxRequests is the number of requests allowed per window per key.
	MaxRequests int `yaml:"max_requests"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration: 60 requests
// per 60-second window.
func DefaultConfig() Config {
	return Config{
		WindowMs:    60_000,
		MaxRequests: 60,
		Enabled:     true,
	}
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// KeyedStore is a shared counter store with native per-key TTL, satisfied by
// a Redis-backed implementation. Incr creates the key at count 1 with the
// given TTL if absent, or atomically increments an existing key without
// resetting its TTL.
type KeyedStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter enforces MaxRequests per WindowMs per (userID, route) pair. When
// built with a KeyedStore it delegates counting to that shared backend
// (multi-instance safe); otherwise it falls back to an in-process map.
type Limiter struct {
	config Config
	store  KeyedStore

	mu      sync.Mutex
	buckets map[string]*windowCounter

	stopOnce sync.Once
	stop     chan struct{}
}

type windowCounter struct {
	windowStart int64
	count       int
}

// NewLimiter creates a rate limiter. Pass a non-nil store to share counts
// across instances (e.g. Redis); pass nil for a single-instance in-process
// limiter, which starts a background sweep to drop stale windows.
func NewLimiter(config Config, store KeyedStore) *Limiter {
	if config.WindowMs <= 0 {
		config.WindowMs = DefaultConfig().WindowMs
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultConfig().MaxRequests
	}
	l := &Limiter{
		config:  config,
		store:   store,
		buckets: make(map[string]*windowCounter),
		stop:    make(chan struct{}),
	}
	if store == nil {
		go l.sweepLoop()
	}
	return l
}

// Close stops the limiter's background sweep, if any.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// windowKey builds the composite key (userId, route, window index) joined
// by NUL bytes, so that neither component can collide across the boundary.
func windowKey(userID, route string, windowIndex int64) string {
	return fmt.Sprintf("%s\x00%s\x00%d", userID, route, windowIndex)
}

// Allow checks and records one request for (userID, route) at the current
// moment. now is injected so callers (and tests) control window boundaries.
func (l *Limiter) Allow(ctx context.Context, userID, route string, now time.Time) (Result, error) {
	if !l.config.Enabled {
		return Result{Allowed: true, Remaining: l.config.MaxRequests}, nil
	}

	windowMs := l.config.WindowMs
	windowIndex := now.UnixMilli() / windowMs
	windowEnd := time.UnixMilli((windowIndex + 1) * windowMs)
	retryAfter := windowEnd.Sub(now)

	key := windowKey(userID, route, windowIndex)

	var count int64
	if l.store != nil {
		ttl := time.Duration(windowMs) * time.Millisecond
		n, err := l.store.Incr(ctx, key, ttl)
		if err != nil {
			return Result{}, err
		}
		count = n
	} else {
		count = int64(l.allowLocal(key, windowIndex))
	}

	if count > int64(l.config.MaxRequests) {
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return Result{
		Allowed:    true,
		Remaining:  l.config.MaxRequests - int(count),
		RetryAfter: retryAfter,
	}, nil
}

func (l *Limiter) allowLocal(key string, windowIndex int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &windowCounter{windowStart: windowIndex}
		l.buckets[key] = bucket
	}
	bucket.count++
	return bucket.count
}

// sweepLoop periodically drops windows older than the current one so the
// in-process map doesn't grow unbounded across (user, route) pairs.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(time.Duration(l.config.WindowMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	currentWindow := now.UnixMilli() / l.config.WindowMs
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if bucket.windowStart < currentWindow {
			delete(l.buckets, key)
		}
	}
}
