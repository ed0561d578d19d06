// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisCache_Conformance(t *testing.T) {
	_, c := setupMiniRedis(t)
	conformance(t, c)
}

func TestRedisCache_TTL(t *testing.T) {
	mr, c := setupMiniRedis(t)

	c.Set("ttl-key", "v", time.Minute)
	c.Set("forever", "v", 0)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"ttl-key"))

	mr.FastForward(2 * time.Minute)

	_, ok := c.Get("ttl-key")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestRedisCache_ClearOnlyTouchesNamespace(t *testing.T) {
	mr, c := setupMiniRedis(t)

	require.NoError(t, mr.Set("foreign", "keep"))
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Clear()
	assert.Equal(t, 0, c.Stats().CurrentSize)

	v, err := mr.Get("foreign")
	require.NoError(t, err)
	assert.Equal(t, "keep", v)
}

func TestRedisCache_HealthCheck(t *testing.T) {
	mr, c := setupMiniRedis(t)
	require.NoError(t, c.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestRedisCache_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(RedisConfig{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisCache_ConcurrentAccess(t *testing.T) {
	_, c := setupMiniRedis(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			c.Set(key, i, time.Minute)
			_, _ = c.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(10), c.Stats().Sets)
	assert.Equal(t, 10, c.Stats().CurrentSize)
}
