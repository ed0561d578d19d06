// SPDX-License-Identifier: MIT

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// conformance runs the behaviour every backend must share.
func conformance(t *testing.T, c Cache) {
	t.Helper()

	c.Set("str", "value", time.Minute)
	c.Set("num", 42, 0)
	c.Set("obj", map[string]any{"email": "a@b.c", "n": 1}, time.Minute)

	v, ok := c.Get("str")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	var n float64
	require.NoError(t, Decode(c, "num", &n))
	assert.Equal(t, 42.0, n)

	var obj struct {
		Email string `json:"email"`
		N     int    `json:"n"`
	}
	require.NoError(t, Decode(c, "obj", &obj))
	assert.Equal(t, "a@b.c", obj.Email)
	assert.Equal(t, 1, obj.N)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.ErrorIs(t, Decode(c, "missing", &n), ErrMiss)

	c.Delete("str")
	_, ok = c.Get("str")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Sets)
	assert.GreaterOrEqual(t, stats.Hits, int64(3))
	assert.GreaterOrEqual(t, stats.Misses, int64(2))
	assert.Equal(t, 2, stats.CurrentSize)

	c.Clear()
	_, ok = c.Get("num")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestMemoryCache_Conformance(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	conformance(t, c)
}

func TestFileCache_Conformance(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	conformance(t, c)
}

func TestBadgerCache_Conformance(t *testing.T) {
	c, err := NewBadgerCache(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	conformance(t, c)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	c.Set("shortlived", "value", 50*time.Millisecond)
	_, ok := c.Get("shortlived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	_, ok = c.Get("shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_JanitorEvictsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemoryCache(10 * time.Millisecond)
	c.Set("a", 1, 5*time.Millisecond)
	c.Set("b", 2, 0)

	assert.Eventually(t, func() bool { return c.Stats().Evictions == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, c.Stats().CurrentSize)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "double close is safe")
}

func TestFileCache_Layout(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	c.Set("session:abc", map[string]string{"email": "x@y.z"}, time.Hour)

	p := c.path("session:abc")
	assert.Equal(t, dir, filepath.Dir(p))
	assert.Len(t, filepath.Base(p), 64+len(fileExt))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key":"session:abc"`)
	assert.Contains(t, string(data), `"expires_at"`)
}

func TestFileCache_ExpiredAndCorruptEntriesAreMisses(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	c.Set("old", "v", time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("old")
	assert.False(t, ok)
	_, err = os.Stat(c.path("old"))
	assert.True(t, os.IsNotExist(err), "expired entry removed on read")
	assert.Equal(t, int64(1), c.Stats().Evictions)

	require.NoError(t, os.WriteFile(c.path("bad"), []byte("{garbage"), 0o600))
	_, ok = c.Get("bad")
	assert.False(t, ok)
	_, err = os.Stat(c.path("bad"))
	assert.True(t, os.IsNotExist(err), "corrupt entry removed on read")

	require.NoError(t, os.WriteFile(c.path("novalue"), []byte(`{"key":"novalue"}`), 0o600))
	_, ok = c.Get("novalue")
	assert.False(t, ok)
	_, err = os.Stat(c.path("novalue"))
	assert.True(t, os.IsNotExist(err), "undecodable value removed on read")
}

func TestBadgerCache_SweepCountsExpiredKeys(t *testing.T) {
	c, err := NewBadgerCache(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	c.Set("short", "v", 2*time.Second)
	c.Set("keep", "v", 0)
	assert.Equal(t, 0, c.sweepExpired(), "nothing expired yet")

	// badger expiry has one second resolution
	require.Eventually(t, func() bool { return c.sweepExpired() == 1 }, 6*time.Second, 100*time.Millisecond)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 0, c.sweepExpired(), "a swept key is not counted twice")

	_, ok := c.Get("keep")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().CurrentSize)
}

func TestFileCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	c.Set("persist", "yes", 0)
	require.NoError(t, c.Close())

	c2, err := NewFileCache(dir, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c2.Close()
	v, ok := c2.Get("persist")
	require.True(t, ok)
	assert.Equal(t, "yes", v)
}

func TestFileCache_JanitorSweeps(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, err := NewFileCache(t.TempDir(), 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	c.Set("a", 1, 5*time.Millisecond)
	c.Set("b", 2, time.Hour)

	assert.Eventually(t, func() bool { return c.Stats().CurrentSize == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
}

func TestNew_Backends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"", "file", "memory", "noop"} {
		c, err := New(Config{Backend: backend, Dir: dir}, zerolog.Nop())
		require.NoError(t, err, backend)
		require.NoError(t, c.Close())
	}

	_, err := New(Config{Backend: "mongo"}, zerolog.Nop())
	assert.Error(t, err)

	c, err := New(Config{Backend: "file"}, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()
	c.Set("k", "v", time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, "noop", c.Stats().Backend)
}
