// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for a fresh installation.
const (
	DefaultDataDir          = "./minios_root"
	DefaultListenAddr       = ":8088"
	DefaultMetricsAddr      = ":9091"
	DefaultStateBackend     = "json"
	DefaultCacheBackend     = "file"
	DefaultAdminEmail       = "admin@ptpy.os"
	DefaultAdminPassword    = "admin"
	DefaultNATSSubject      = "minios.notifications"
	DefaultNotifyHistory    = 50
	DefaultHistorySize      = 500
	DefaultAutosaveInterval = 5 * time.Minute
	DefaultSessionTTL       = 24 * time.Hour
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Defaults returns the configuration used when neither file nor ENV set a key.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  DefaultDataDir,
		LogLevel: "info",
		API: APIConfig{
			ListenAddr: DefaultListenAddr,
			RateLimit:  RateLimitConfig{Enabled: true, RPS: 20, Burst: 40},
		},
		Server: ServerConfig{
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    0, // SSE streams stay open
			IdleTimeout:     120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{ListenAddr: DefaultMetricsAddr},
		State:   StateConfig{Backend: DefaultStateBackend},
		Cache: CacheConfig{
			Backend:         DefaultCacheBackend,
			CleanupInterval: time.Minute,
			Redis:           RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Session: SessionConfig{TTL: DefaultSessionTTL},
		Admin:   AdminConfig{Email: DefaultAdminEmail, Password: DefaultAdminPassword},
		Scheduler: SchedulerConfig{
			AutosaveInterval:   DefaultAutosaveInterval,
			TrashSweepInterval: time.Hour,
		},
		Notify: NotifyConfig{History: DefaultNotifyHistory, NATSSubject: DefaultNATSSubject},
		Shell:  ShellConfig{ScriptTimeout: 10 * time.Second, HistorySize: DefaultHistorySize},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: defaults, file (strict), env, normalise, validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.DataDir, ".cache")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file on top of cfg with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overrides cfg with MINIOS_* environment variables.
func mergeEnv(cfg *AppConfig) {
	e := func(name string) string { return EnvPrefix + name }

	cfg.DataDir = ParseString(e("DATA_DIR"), cfg.DataDir)
	cfg.LogLevel = ParseString(e("LOG_LEVEL"), cfg.LogLevel)

	cfg.API.ListenAddr = ParseString(e("LISTEN"), cfg.API.ListenAddr)
	cfg.API.Token = ParseString(e("API_TOKEN"), cfg.API.Token)
	cfg.API.AllowedOrigins = ParseList(e("ALLOWED_ORIGINS"), cfg.API.AllowedOrigins)
	cfg.API.RateLimit.Enabled = ParseBool(e("RATELIMIT_ENABLED"), cfg.API.RateLimit.Enabled)
	cfg.API.RateLimit.RPS = ParseInt(e("RATELIMIT_RPS"), cfg.API.RateLimit.RPS)
	cfg.API.RateLimit.Burst = ParseInt(e("RATELIMIT_BURST"), cfg.API.RateLimit.Burst)

	cfg.Server.ReadTimeout = ParseDuration(e("SERVER_READ_TIMEOUT"), cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration(e("SERVER_WRITE_TIMEOUT"), cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = ParseDuration(e("SERVER_IDLE_TIMEOUT"), cfg.Server.IdleTimeout)
	cfg.Server.MaxHeaderBytes = ParseInt(e("SERVER_MAX_HEADER_BYTES"), cfg.Server.MaxHeaderBytes)
	cfg.Server.ShutdownTimeout = ParseDuration(e("SHUTDOWN_TIMEOUT"), cfg.Server.ShutdownTimeout)
	cfg.Server.MaxConnections = ParseInt(e("SERVER_MAX_CONNECTIONS"), cfg.Server.MaxConnections)

	cfg.Metrics.ListenAddr = ParseString(e("METRICS_LISTEN"), cfg.Metrics.ListenAddr)
	cfg.State.Backend = ParseString(e("STATE_BACKEND"), cfg.State.Backend)

	cfg.Cache.Backend = ParseString(e("CACHE_BACKEND"), cfg.Cache.Backend)
	cfg.Cache.Dir = ParseString(e("CACHE_DIR"), cfg.Cache.Dir)
	cfg.Cache.CleanupInterval = ParseDuration(e("CACHE_CLEANUP_INTERVAL"), cfg.Cache.CleanupInterval)
	cfg.Cache.Redis.Addr = ParseString(e("REDIS_ADDR"), cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = ParseString(e("REDIS_PASSWORD"), cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = ParseInt(e("REDIS_DB"), cfg.Cache.Redis.DB)

	cfg.Session.TTL = ParseDuration(e("SESSION_TTL"), cfg.Session.TTL)
	cfg.Admin.Email = ParseString(e("ADMIN_EMAIL"), cfg.Admin.Email)
	cfg.Admin.Password = ParseString(e("ADMIN_PASSWORD"), cfg.Admin.Password)

	cfg.Scheduler.AutosaveInterval = ParseDuration(e("AUTOSAVE_INTERVAL"), cfg.Scheduler.AutosaveInterval)
	cfg.Scheduler.TrashRetention = ParseDuration(e("TRASH_RETENTION"), cfg.Scheduler.TrashRetention)
	cfg.Scheduler.TrashSweepInterval = ParseDuration(e("TRASH_SWEEP_INTERVAL"), cfg.Scheduler.TrashSweepInterval)

	cfg.Notify.History = ParseInt(e("NOTIFY_HISTORY"), cfg.Notify.History)
	cfg.Notify.NATSURL = ParseString(e("NATS_URL"), cfg.Notify.NATSURL)
	cfg.Notify.NATSSubject = ParseString(e("NATS_SUBJECT"), cfg.Notify.NATSSubject)

	cfg.Shell.ScriptTimeout = ParseDuration(e("SCRIPT_TIMEOUT"), cfg.Shell.ScriptTimeout)
	cfg.Shell.HistorySize = ParseInt(e("HISTORY_SIZE"), cfg.Shell.HistorySize)

	cfg.Telemetry.Enabled = ParseBool(e("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(e("TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(e("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(e("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}
