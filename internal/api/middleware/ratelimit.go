// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request. Defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
	// OnLimited is called for every rejected request.
	OnLimited func(remoteAddr, path string)
}

// RateLimit creates a sliding-window rate limiting middleware using httprate.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := int(cfg.WindowSize.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.OnLimited != nil {
				cfg.OnLimited(r.RemoteAddr, r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"RATE_LIMIT_EXCEEDED","message":"Too many requests. Please try again later."}`))
		}),
	)
}

// APIRateLimit limits each client IP to rps requests per second on average
// with bursts of up to burst requests. The window is sized so that burst
// requests fit exactly once per burst/rps seconds.
func APIRateLimit(rps, burst int, onLimited func(remoteAddr, path string)) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 1
	}
	if burst < rps {
		burst = rps
	}
	window := time.Duration(burst) * time.Second / time.Duration(rps)
	return RateLimit(RateLimitConfig{
		RequestLimit: burst,
		WindowSize:   window,
		OnLimited:    onLimited,
	})
}
