// SPDX-License-Identifier: MIT

// Package cache provides key/value caching with TTL support. The default
// backend keeps one JSON file per key on disk, so the system needs no
// external database; memory, badger and redis backends are available too.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrMiss is returned by Decode helpers when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache provides thread-safe caching with expiration support.
// A ttl <= 0 stores the value without expiry.
type Cache interface {
	// Get retrieves a value from the cache. Returns nil if not found or expired.
	Get(key string) (any, bool)
	// Set stores a value in the cache with the specified TTL.
	Set(key string, value any, ttl time.Duration)
	// Delete removes a value from the cache.
	Delete(key string)
	// Clear removes all values from the cache.
	Clear()
	// Stats returns cache statistics.
	Stats() CacheStats
	// Close releases background workers and handles.
	Close() error
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	Backend     string `json:"backend"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Sets        int64  `json:"sets"`
	Evictions   int64  `json:"evictions"`
	CurrentSize int    `json:"current_size"`
}

// counters is embedded by every backend.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

func (c *counters) snapshot(backend string, size int) CacheStats {
	return CacheStats{
		Backend:     backend,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// Config selects a backend.
type Config struct {
	Backend         string
	Dir             string
	CleanupInterval time.Duration
	Redis           RedisConfig
}

// New builds the configured backend.
func New(cfg Config, logger zerolog.Logger) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch cfg.Backend {
	case "", "file":
		c, err = asCache(NewFileCache(cfg.Dir, cfg.CleanupInterval, logger))
	case "memory":
		c = NewMemoryCache(cfg.CleanupInterval)
	case "badger":
		c, err = asCache(NewBadgerCache(cfg.Dir, cfg.CleanupInterval, logger))
	case "redis":
		c, err = asCache(NewRedisCache(cfg.Redis, logger))
	case "noop":
		c = NewNoOpCache()
	default:
		err = fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// asCache avoids handing out typed nil pointers wrapped in a non-nil interface.
func asCache[T Cache](c T, err error) (Cache, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Decode fetches key and converts the cached value into out through JSON,
// which works the same whether the backend returned the original value or
// a decoded JSON tree.
func Decode(c Cache, key string, out any) error {
	v, ok := c.Get(key)
	if !ok {
		return ErrMiss
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encode cached value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode cached value: %w", err)
	}
	return nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func expired(at time.Time) bool {
	return !at.IsZero() && time.Now().After(at)
}

// noOpCache is a cache that does nothing (useful for disabling caching).
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache anything.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(string) (any, bool)          { return nil, false }
func (noOpCache) Set(string, any, time.Duration) {}
func (noOpCache) Delete(string)                  {}
func (noOpCache) Clear()                         {}
func (noOpCache) Stats() CacheStats              { return CacheStats{Backend: "noop"} }
func (noOpCache) Close() error                   { return nil }
