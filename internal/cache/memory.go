package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store. Values are kept as JSON so readers
// never share mutable state with writers.
type MemoryStore struct {
	mem    *gocache.Cache
	logger *slog.Logger
}

// NewMemoryStore creates an in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mem:    gocache.New(5*time.Minute, 10*time.Minute),
		logger: slog.Default().With("component", "memory_cache"),
	}
}

// Get retrieves a cached value by key and unmarshals into target
func (m *MemoryStore) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	raw, ok := m.mem.Get(key)
	if !ok {
		m.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return false, fmt.Errorf("unexpected cached type %T for key %s", raw, key)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}
	m.logger.Debug("cache hit", "key", key)
	return true, nil
}

// SetWithTTL stores a value with a custom TTL
func (m *MemoryStore) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	m.mem.Set(key, data, ttl)
	m.logger.Debug("cache set", "key", key, "ttl", ttl)
	return nil
}

// Delete removes a key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mem.Delete(key)
	return nil
}

// ItemCount returns the number of live entries
func (m *MemoryStore) ItemCount() int {
	return m.mem.ItemCount()
}
