// SPDX-License-Identifier: MIT

// Package ratelimit throttles expensive per-principal operations such as
// terminal execution and login attempts. Request-level limiting per IP lives
// in the API middleware.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Operation kinds.
const (
	KindTerminal = "terminal"
	KindLogin    = "login"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "minios",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"limit_type", "kind"},
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits across all keys
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-key limits, keyed by kind. Kinds without an entry are only
	// subject to the global limit.
	KindRates map[string]rate.Limit
	KindBurst map[string]int

	// Keys idle for longer than IdleTTL are forgotten.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		GlobalRate:  50,
		GlobalBurst: 100,
		KindRates: map[string]rate.Limit{
			KindTerminal: 5,                      // script runs are expensive
			KindLogin:    rate.Every(time.Second), // slows password guessing
		},
		KindBurst: map[string]int{
			KindTerminal: 10,
			KindLogin:    5,
		},
		IdleTTL: 10 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies a global limit and a per-(kind, key) limit.
type Limiter struct {
	config Config
	global *rate.Limiter

	mu          sync.Mutex
	keys        map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		keys:        make(map[string]*entry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether one operation of kind by key may proceed now.
func (l *Limiter) Allow(key, kind string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", kind).Inc()
		return false
	}

	lim := l.keyLimiter(key, kind)
	if lim != nil && !lim.Allow() {
		rateLimitExceeded.WithLabelValues("per_key", kind).Inc()
		return false
	}
	return true
}

func (l *Limiter) keyLimiter(key, kind string) *rate.Limiter {
	r, ok := l.config.KindRates[kind]
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanupLocked(now)

	k := kind + "\x00" + key
	e, exists := l.keys[k]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(r, l.config.KindBurst[kind])}
		l.keys[k] = e
	}
	e.lastSeen = now
	return e.limiter
}

// cleanupLocked forgets idle keys at most once per IdleTTL.
func (l *Limiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.config.IdleTTL {
		return
	}
	for k, e := range l.keys {
		if now.Sub(e.lastSeen) >= l.config.IdleTTL {
			delete(l.keys, k)
		}
	}
	l.lastCleanup = now
}

// Tracked returns how many keys currently hold a limiter.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
