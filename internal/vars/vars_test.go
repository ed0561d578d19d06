// SPDX-License-Identifier: MIT

package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Defaults(t *testing.T) {
	s := New()
	v, ok := s.Get("version")
	require.True(t, ok)
	assert.Equal(t, "1.5", v)
	v, _ = s.Get("system_name")
	assert.Equal(t, "PTPY Mini OS", v)
}

func TestStore_SetGetDelete(t *testing.T) {
	s := New()
	fired := 0
	s.SetChangeHook(func() { fired++ })

	require.NoError(t, s.Set("counter", 3))
	v, ok := s.Get("counter")
	require.True(t, ok)
	assert.Equal(t, 3.0, v, "numbers are JSON-normalised")

	require.NoError(t, s.Set("tags", []string{"a", "b"}))
	v, _ = s.Get("tags")
	assert.Equal(t, []any{"a", "b"}, v)

	assert.ErrorIs(t, s.Set("1bad", 1), ErrInvalidName)
	assert.Error(t, s.Set("ch", make(chan int)))

	assert.True(t, s.Delete("counter"))
	assert.False(t, s.Delete("counter"))
	assert.Equal(t, 3, fired)
}

func TestStore_AllIsCopy(t *testing.T) {
	s := New()
	all := s.All()
	all["version"] = "hacked"
	v, _ := s.Get("version")
	assert.Equal(t, "1.5", v)
}

func TestStore_Replace(t *testing.T) {
	s := New()
	s.Replace(map[string]any{"only": true})
	_, ok := s.Get("version")
	assert.False(t, ok)

	s.Replace(nil)
	_, ok = s.Get("version")
	assert.True(t, ok)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 42.0, ParseValue("42"))
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, map[string]any{"a": 1.0}, ParseValue(`{"a":1}`))
	assert.Equal(t, "hello world", ParseValue("hello world"))
}
