// SPDX-License-Identifier: MIT

// Package config loads, validates, persists and hot-reloads the daemon
// configuration. Precedence is ENV > YAML file > defaults.
package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	// Version is injected from the binary, never read from the file.
	Version string `yaml:"-"`

	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	State     StateConfig     `yaml:"state"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Admin     AdminConfig     `yaml:"admin"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Apps      []AppEntry      `yaml:"apps,omitempty"`
	Shell     ShellConfig     `yaml:"shell"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// APIConfig configures the HTTP API listener.
type APIConfig struct {
	ListenAddr string          `yaml:"listenAddr"`
	Token      string          `yaml:"token,omitempty"`
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// RateLimitConfig configures per-IP request limiting.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	RPS     int  `yaml:"rps"`
	Burst   int  `yaml:"burst"`
}

// ServerConfig holds HTTP server tuning.
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// MaxConnections caps concurrent API connections. 0 means unlimited.
	MaxConnections int `yaml:"maxConnections"`
}

// MetricsConfig configures the Prometheus listener. Empty address disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// StateConfig selects the engine state backend.
type StateConfig struct {
	Backend string `yaml:"backend"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	Dir             string        `yaml:"dir,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// SessionConfig controls login sessions.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AdminConfig is the bootstrap account created when no users exist.
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// SchedulerConfig controls background jobs.
type SchedulerConfig struct {
	AutosaveInterval   time.Duration `yaml:"autosaveInterval"`
	TrashRetention     time.Duration `yaml:"trashRetention"`
	TrashSweepInterval time.Duration `yaml:"trashSweepInterval"`
}

// NotifyConfig controls the notification hub.
type NotifyConfig struct {
	History     int    `yaml:"history"`
	NATSURL     string `yaml:"natsURL,omitempty"`
	NATSSubject string `yaml:"natsSubject"`
}

// AppEntry declares an external application the process table may launch.
type AppEntry struct {
	Name    string   `yaml:"name"`
	Icon    string   `yaml:"icon,omitempty"`
	Command []string `yaml:"command"`
}

// ShellConfig controls the terminal.
type ShellConfig struct {
	ScriptTimeout time.Duration `yaml:"scriptTimeout"`
	HistorySize   int           `yaml:"historySize"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
