// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/minios/internal/validate"
)

// Supported backend names.
var (
	StateBackends      = []string{"json", "sqlite"}
	CacheBackends      = []string{"file", "memory", "badger", "redis", "noop"}
	TelemetryExporters = []string{"grpc", "http"}
	LogLevels          = []string{"trace", "debug", "info", "warn", "error"}
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("dataDir", cfg.DataDir)
	v.OneOf("logLevel", strings.ToLower(cfg.LogLevel), LogLevels)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	if cfg.API.RateLimit.Enabled {
		v.Positive("api.rateLimit.rps", cfg.API.RateLimit.RPS)
		v.Positive("api.rateLimit.burst", cfg.API.RateLimit.Burst)
	}
	if cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
		if cfg.Metrics.ListenAddr == cfg.API.ListenAddr {
			v.AddError("metrics.listenAddr", "must differ from api.listenAddr", cfg.Metrics.ListenAddr)
		}
	}

	v.NonNegativeDuration("server.readTimeout", cfg.Server.ReadTimeout)
	v.NonNegativeDuration("server.writeTimeout", cfg.Server.WriteTimeout)
	v.NonNegativeDuration("server.idleTimeout", cfg.Server.IdleTimeout)
	v.PositiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)
	if cfg.Server.MaxConnections < 0 {
		v.AddError("server.maxConnections", "cannot be negative", cfg.Server.MaxConnections)
	}

	v.OneOf("state.backend", cfg.State.Backend, StateBackends)
	v.OneOf("cache.backend", cfg.Cache.Backend, CacheBackends)
	v.NonNegativeDuration("cache.cleanupInterval", cfg.Cache.CleanupInterval)
	if cfg.Cache.Backend == "redis" {
		v.NotEmpty("cache.redis.addr", cfg.Cache.Redis.Addr)
	}

	v.PositiveDuration("session.ttl", cfg.Session.TTL)
	v.NotEmpty("admin.email", cfg.Admin.Email)
	v.NotEmpty("admin.password", cfg.Admin.Password)

	v.NonNegativeDuration("scheduler.autosaveInterval", cfg.Scheduler.AutosaveInterval)
	v.NonNegativeDuration("scheduler.trashRetention", cfg.Scheduler.TrashRetention)
	if cfg.Scheduler.TrashRetention > 0 {
		v.PositiveDuration("scheduler.trashSweepInterval", cfg.Scheduler.TrashSweepInterval)
	}

	v.Positive("notify.history", cfg.Notify.History)
	if cfg.Notify.NATSURL != "" {
		v.URL("notify.natsURL", cfg.Notify.NATSURL, []string{"nats", "tls", "ws", "wss"})
		v.NotEmpty("notify.natsSubject", cfg.Notify.NATSSubject)
	}

	seen := make(map[string]struct{}, len(cfg.Apps))
	for i, app := range cfg.Apps {
		field := fmt.Sprintf("apps[%d]", i)
		name := strings.ToLower(strings.TrimSpace(app.Name))
		if name == "" {
			v.AddError(field+".name", "value cannot be empty", app.Name)
			continue
		}
		if _, dup := seen[name]; dup {
			v.AddError(field+".name", "duplicate app name", app.Name)
		}
		seen[name] = struct{}{}
		if len(app.Command) == 0 || strings.TrimSpace(app.Command[0]) == "" {
			v.AddError(field+".command", "command cannot be empty", app.Command)
		}
	}

	v.PositiveDuration("shell.scriptTimeout", cfg.Shell.ScriptTimeout)
	v.Positive("shell.historySize", cfg.Shell.HistorySize)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, TelemetryExporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
