// SPDX-License-Identifier: MIT

package cache

import (
	"sync"
	"time"
)

type entry struct {
	value      any
	expiration time.Time
}

// memoryCache is an in-memory implementation of Cache.
type memoryCache struct {
	counters
	mu      sync.RWMutex
	entries map[string]entry
	janitor *janitor
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
// The cleanupInterval determines how often expired entries are removed.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]entry)}
	c.janitor = startJanitor(cleanupInterval, func() { c.deleteExpired() })
	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || expired(e.expiration) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiration: expiry(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *memoryCache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return c.snapshot("memory", size)
}

// deleteExpired removes all expired entries and returns how many.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if expired(e.expiration) {
			delete(c.entries, key)
			count++
		}
	}
	c.evictions.Add(int64(count))
	return count
}

func (c *memoryCache) Close() error {
	c.janitor.Stop()
	return nil
}

// janitor runs a sweep function periodically until stopped.
type janitor struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// startJanitor returns a running janitor, or a nil janitor when interval <= 0.
func startJanitor(interval time.Duration, sweep func()) *janitor {
	if interval <= 0 {
		return nil
	}
	j := &janitor{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-j.stop:
				return
			}
		}
	}()
	return j
}

// Stop halts the janitor and waits for it to exit. Safe on nil and
// safe to call more than once.
func (j *janitor) Stop() {
	if j == nil {
		return
	}
	j.once.Do(func() { close(j.stop) })
	<-j.done
}
