// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minios/internal/cache"
)

func TestExtractToken_PriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	assert.Equal(t, "bearer-token", ExtractToken(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "cookie-token", ExtractToken(r))

	bare := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	bare.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(bare))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("secret", ""))
}

func TestManager_SessionLifecycle(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	m := NewManager(c, time.Hour, "", "admin@ptpy.os")
	token, s := m.Create("user@x.y")
	require.NotEmpty(t, token)
	assert.Equal(t, "user@x.y", s.Email)

	p, err := m.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user@x.y", p.Email)
	assert.False(t, p.Static)

	m.Revoke(token)
	_, err = m.Resolve(token)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.Resolve("")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Resolve("unknown")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_SessionExpires(t *testing.T) {
	c := cache.NewMemoryCache(0)
	defer c.Close()

	m := NewManager(c, 20*time.Millisecond, "", "admin@ptpy.os")
	token, _ := m.Create("user@x.y")
	time.Sleep(50 * time.Millisecond)

	_, err := m.Resolve(token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_StaticToken(t *testing.T) {
	c := cache.NewMemoryCache(0)
	defer c.Close()

	m := NewManager(c, time.Hour, "static", "admin@ptpy.os")
	p, err := m.Resolve("static")
	require.NoError(t, err)
	assert.True(t, p.Static)
	assert.Equal(t, "admin@ptpy.os", p.Email)
	assert.Equal(t, "static-token", p.ID())

	m.Revoke("static")
	_, err = m.Resolve("static")
	assert.NoError(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Email: "a@b.c"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "a@b.c", p.Email)
}
