// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP middleware stack of the API server.
package middleware

import (
	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/minios/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	// CORS is enabled when AllowedOrigins is non-empty.
	AllowedOrigins []string

	// Security headers
	EnableSecurityHeaders bool
	CSP                   string

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Per-IP rate limiting
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
	// OnRateLimited is called for every rejected request, e.g. for auditing.
	OnRateLimited func(remoteAddr, path string)
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. CORS (so OPTIONS and browser clients behave)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	// 4. Security headers
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders(cfg.CSP))
	}
	// 5. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 6. Tracing
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	// 7. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(log.Middleware())
	}
	// 8. Rate limit
	if cfg.RateLimitEnabled {
		r.Use(APIRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.OnRateLimited))
	}
	// 9. CSRF for cookie-authenticated browser requests
	r.Use(CSRFProtection(cfg.AllowedOrigins))
}
