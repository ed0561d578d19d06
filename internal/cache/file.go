// SPDX-License-Identifier: MIT

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const fileExt = ".json"

// fileRecord is the on-disk layout of one cache entry.
type fileRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// FileCache stores each key in its own JSON file named after the SHA-256
// of the key. Writes replace files atomically, so readers never see a
// partial entry.
type FileCache struct {
	counters
	dir     string
	logger  zerolog.Logger
	janitor *janitor
}

// NewFileCache creates dir if needed and starts the expiry janitor.
func NewFileCache(dir string, cleanupInterval time.Duration, logger zerolog.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("file cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file cache: create dir: %w", err)
	}
	c := &FileCache{dir: dir, logger: logger.With().Str("backend", "file").Logger()}
	c.janitor = startJanitor(cleanupInterval, func() { c.Sweep() })
	return c, nil
}

func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+fileExt)
}

// read returns the record at p. ok is false when the file is missing or
// unusable; unusable files are removed.
func (c *FileCache) read(p string) (fileRecord, bool) {
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", p).Msg("cache read failed")
		}
		return fileRecord{}, false
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn().Err(err).Str("path", p).Msg("corrupt cache entry removed")
		_ = os.Remove(p)
		return fileRecord{}, false
	}
	return rec, true
}

func (c *FileCache) Get(key string) (any, bool) {
	p := c.path(key)
	rec, ok := c.read(p)
	if !ok || rec.Key != key {
		c.misses.Add(1)
		return nil, false
	}
	if rec.ExpiresAt != nil && expired(*rec.ExpiresAt) {
		if err := os.Remove(p); err == nil {
			c.evictions.Add(1)
		}
		c.misses.Add(1)
		return nil, false
	}

	var v any
	if err := json.Unmarshal(rec.Value, &v); err != nil {
		c.logger.Warn().Err(err).Str("path", p).Msg("corrupt cache entry removed")
		_ = os.Remove(p)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *FileCache) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json marshal failed")
		return
	}
	rec := fileRecord{Key: key, Value: raw}
	if exp := expiry(ttl); !exp.IsZero() {
		rec.ExpiresAt = &exp
	}
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json marshal failed")
		return
	}
	if err := renameio.WriteFile(c.path(key), data, 0o600); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	c.sets.Add(1)
}

func (c *FileCache) Delete(key string) {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

func (c *FileCache) entries() []string {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache dir unreadable")
		return nil
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		if de.Type().IsRegular() && strings.HasSuffix(de.Name(), fileExt) {
			out = append(out, filepath.Join(c.dir, de.Name()))
		}
	}
	return out
}

func (c *FileCache) Clear() {
	for _, p := range c.entries() {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", p).Msg("cache clear failed")
		}
	}
}

func (c *FileCache) Stats() CacheStats {
	return c.snapshot("file", len(c.entries()))
}

// Sweep removes expired and corrupt entries and returns how many expired.
func (c *FileCache) Sweep() int {
	removed := 0
	for _, p := range c.entries() {
		rec, ok := c.read(p)
		if !ok || rec.ExpiresAt == nil || !expired(*rec.ExpiresAt) {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	c.evictions.Add(int64(removed))
	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("expired cache entries swept")
	}
	return removed
}

func (c *FileCache) Close() error {
	c.janitor.Stop()
	return nil
}
