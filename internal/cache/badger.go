// SPDX-License-Identifier: MIT

package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerCache is an embedded LSM-backed cache. Expiry is native to badger.
type BadgerCache struct {
	counters
	db      *badger.DB
	logger  zerolog.Logger
	janitor *janitor
}

// NewBadgerCache opens (or creates) a badger database in dir. The janitor
// deletes expired keys and runs value-log garbage collection every gcInterval.
func NewBadgerCache(dir string, gcInterval time.Duration, logger zerolog.Logger) (*BadgerCache, error) {
	if dir == "" {
		return nil, errors.New("badger cache: directory is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger cache: open: %w", err)
	}
	c := &BadgerCache{db: db, logger: logger.With().Str("backend", "badger").Logger()}
	c.janitor = startJanitor(gcInterval, func() {
		c.sweepExpired()
		c.runGC()
	})
	return c, nil
}

// sweepExpired replaces the newest version of every TTL-expired key with a
// tombstone and counts those keys as evictions. Badger hides expired keys
// from reads on its own, so this is where they become visible in Stats.
func (c *BadgerCache) sweepExpired() int {
	now := uint64(time.Now().Unix())
	var n int
	err := c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.AllVersions = true
		it := txn.NewIterator(opts)
		var expired [][]byte
		var last []byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if last != nil && bytes.Equal(item.Key(), last) {
				continue
			}
			last = item.KeyCopy(nil)
			if exp := item.ExpiresAt(); exp != 0 && exp <= now {
				expired = append(expired, last)
			}
		}
		it.Close()

		for _, k := range expired {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("badger expiry sweep failed")
		return 0
	}
	c.evictions.Add(int64(n))
	return n
}

func (c *BadgerCache) runGC() {
	for {
		if err := c.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				c.logger.Warn().Err(err).Msg("badger value log gc failed")
			}
			return
		}
	}
}

func (c *BadgerCache) Get(key string) (any, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("badger get failed")
		}
		c.misses.Add(1)
		return nil, false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json unmarshal failed")
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *BadgerCache) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json marshal failed")
		return
	}
	e := badger.NewEntry([]byte(key), raw)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("badger set failed")
		return
	}
	c.sets.Add(1)
}

func (c *BadgerCache) Delete(key string) {
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) }); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("badger delete failed")
	}
}

func (c *BadgerCache) Clear() {
	if err := c.db.DropAll(); err != nil {
		c.logger.Warn().Err(err).Msg("badger drop all failed")
	}
}

func (c *BadgerCache) Stats() CacheStats {
	size := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			size++
		}
		return nil
	})
	return c.snapshot("badger", size)
}

func (c *BadgerCache) Close() error {
	c.janitor.Stop()
	return c.db.Close()
}
