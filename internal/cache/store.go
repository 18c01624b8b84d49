// Package cache provides the JSON value cache shared by sheet sources.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Store is a JSON value cache with per-entry TTL
type Store interface {
	// Get unmarshals the cached value into target. A miss is (false, nil).
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New returns a Redis-backed store when redisURL is set, otherwise an
// in-process store. A Redis connection failure falls back to memory.
func New(ctx context.Context, redisURL string) Store {
	if redisURL == "" {
		return NewMemoryStore()
	}
	store, err := NewRedisStore(ctx, redisURL)
	if err != nil {
		slog.Default().With("component", "cache").
			Warn("redis unavailable, using in-process cache", "error", err)
		return NewMemoryStore()
	}
	return store
}

// Key generates a standardized cache key, e.g. "sheet:allowlist"
func Key(parts ...string) string {
	key := "chatform"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
