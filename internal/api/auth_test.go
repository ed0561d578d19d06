// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/minios/internal/auth"
)

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/vars", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = f.do(http.MethodGet, "/api/v1/vars", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/vars", staticToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "Ada@Example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "ada@example.com", Password: "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "ada@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "ada@example.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	var resp loginResponse
	decode(t, rec, &resp)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, cookie.Value, resp.Token)
	assert.False(t, resp.ExpiresAt.IsZero())

	rec = f.do(http.MethodGet, "/api/v1/vars", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/auth/logout", resp.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/vars", resp.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieSessionIsCSRFChecked(t *testing.T) {
	f := newFixture(t)
	token := f.login()

	send := func(origin string) int {
		req := httptest.NewRequest(http.MethodPut, "http://minios.local/api/v1/vars/x", strings.NewReader(`{"value":1}`))
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		f.handle.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("http://minios.local"))
	assert.Equal(t, http.StatusForbidden, send("https://evil.example"))
	assert.Equal(t, http.StatusForbidden, send(""))
}

func TestLoginIsRateLimitedPerIP(t *testing.T) {
	f := newFixture(t)

	codes := map[int]int{}
	for i := 0; i < 8; i++ {
		rec := f.do(http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "x@y.z", Password: "nope"})
		codes[rec.Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.Positive(t, codes[http.StatusUnauthorized])
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.handle.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "", Password: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
