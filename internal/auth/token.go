// SPDX-License-Identifier: MIT

// Package auth implements request authentication: bearer or cookie tokens
// resolved to sessions stored in the cache, plus an optional static admin
// token from configuration.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CookieName is the session cookie set on login.
const CookieName = "minios_session"

// ExtractToken returns the request token from the Authorization header or
// the session cookie, in that order.
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// AuthorizeToken compares tokens in constant time. An empty expected token
// never authorizes.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
