// SPDX-License-Identifier: MIT

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/api"
	"github.com/ManuGH/minios/internal/audit"
	"github.com/ManuGH/minios/internal/auth"
	"github.com/ManuGH/minios/internal/cache"
	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/health"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/notify"
	"github.com/ManuGH/minios/internal/process"
	"github.com/ManuGH/minios/internal/ratelimit"
	"github.com/ManuGH/minios/internal/scheduler"
	"github.com/ManuGH/minios/internal/shell"
	"github.com/ManuGH/minios/internal/telemetry"
)

// ServiceName identifies the daemon in logs and traces.
const ServiceName = "minios"

// Options tune Bootstrap. The zero value is ready for production.
type Options struct {
	// Holder, when set, is reloaded before every engine restart.
	Holder *config.ConfigHolder

	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// BcryptCost overrides the password hashing cost; 0 keeps the default.
	BcryptCost int
}

// System is a fully wired daemon. Run it through Manager (or App) and every
// component is released by the manager's shutdown hooks.
type System struct {
	Config   config.AppConfig
	Cache    cache.Cache
	Hub      *notify.Hub
	Engine   *engine.Engine
	Procs    *process.Table
	Terminal *shell.Terminal
	Sched    *scheduler.Scheduler
	Health   *health.Manager
	Audit    *audit.Logger
	API      *api.Server
	Manager  Manager

	holder *config.ConfigHolder
	tracer *telemetry.Provider
	logger zerolog.Logger
}

// Bootstrap builds every component for cfg and boots the engine. On error,
// everything built so far is released again.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts Options) (sys *System, err error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &System{
		Config: cfg,
		holder: opts.Holder,
		logger: log.WithComponent("daemon"),
	}

	// hooks run newest first, both on failure here and at shutdown.
	var hooks []namedHook
	addHook := func(name string, fn ShutdownHook) { hooks = append(hooks, namedHook{name: name, hook: fn}) }
	defer func() {
		if err == nil {
			return
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			if herr := hooks[i].hook(context.WithoutCancel(ctx)); herr != nil {
				s.logger.Warn().Err(herr).Str("hook", hooks[i].name).Msg("cleanup after failed bootstrap")
			}
		}
	}()

	s.tracer, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	addHook("tracer", s.tracer.Shutdown)

	s.Cache, err = cache.New(cache.Config{
		Backend:         cfg.Cache.Backend,
		Dir:             cfg.Cache.Dir,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		},
	}, log.WithComponent("cache"))
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	addHook("cache", func(context.Context) error { return s.Cache.Close() })

	unregister, err := metrics.RegisterCacheCollector(opts.Registerer, metrics.NewCacheCollector(func() metrics.CacheSnapshot {
		st := s.Cache.Stats()
		return metrics.CacheSnapshot(st)
	}))
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}
	addHook("cache-metrics", func(context.Context) error { unregister(); return nil })

	s.Hub = notify.NewHub(cfg.Notify.History)
	if cfg.Notify.NATSURL != "" {
		sink, serr := notify.NewNATSSink(cfg.Notify.NATSURL, cfg.Notify.NATSSubject)
		if serr != nil {
			// Notifications still work locally without the fan-out.
			s.logger.Warn().Err(serr).Str(log.FieldEvent, "notify.nats_unavailable").Msg("NATS fan-out disabled")
		} else {
			s.Hub.AddSink(sink)
		}
	}
	addHook("notifications", func(context.Context) error { return s.Hub.Close() })

	s.Engine = engine.New(engine.Config{
		Root:          cfg.DataDir,
		StateBackend:  cfg.State.Backend,
		AdminEmail:    cfg.Admin.Email,
		AdminPassword: cfg.Admin.Password,
		BcryptCost:    opts.BcryptCost,
	}, s.Hub)
	if err = s.Engine.Boot(ctx); err != nil {
		return nil, fmt.Errorf("boot engine: %w", err)
	}
	addHook("engine", s.Engine.Shutdown)

	s.Procs, err = process.NewTable(appsFromConfig(cfg.Apps), process.Options{Dir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("process table: %w", err)
	}
	addHook("processes", s.Procs.Close)

	s.Sched, err = scheduler.New(scheduler.Deps{Engine: s.Engine, Procs: s.Procs, Config: cfg.Scheduler})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	s.Sched.Start()
	addHook("scheduler", func(context.Context) error { return s.Sched.Stop() })

	s.Terminal = shell.New(s.Engine, s.Procs, shell.Options{
		ScriptTimeout: cfg.Shell.ScriptTimeout,
		HistorySize:   cfg.Shell.HistorySize,
	})
	s.Audit = audit.NewLogger()
	s.Health = newHealthManager(cfg, s.Engine, s.Cache)

	s.API, err = api.New(cfg, api.Deps{
		Engine:   s.Engine,
		Procs:    s.Procs,
		Terminal: s.Terminal,
		Sessions: auth.NewManager(s.Cache, cfg.Session.TTL, cfg.API.Token, cfg.Admin.Email),
		Cache:    s.Cache,
		Limiter:  ratelimit.New(ratelimit.DefaultConfig()),
		Audit:    s.Audit,
		Health:   s.Health,
		Restart:  s.Restart,
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	s.Manager, err = NewManager(Deps{
		Logger:         log.WithComponent("daemon"),
		Server:         cfg.Server,
		APIAddr:        cfg.API.ListenAddr,
		APIHandler:     s.API.Handler(),
		MetricsAddr:    cfg.Metrics.ListenAddr,
		MetricsHandler: promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		s.Manager.RegisterShutdownHook(h.name, h.hook)
	}

	s.logger.Info().
		Str(log.FieldEvent, "daemon.bootstrapped").
		Str("data_dir", cfg.DataDir).
		Str("state_backend", cfg.State.Backend).
		Str("cache_backend", s.Cache.Stats().Backend).
		Strs("jobs", s.Sched.Jobs()).
		Bool("tracing", s.tracer.Enabled()).
		Msg("system wired")
	return s, nil
}

// Restart reloads the configuration file, when there is one, and restarts
// the engine from its persisted state. A failed config reload keeps the old
// configuration and does not prevent the engine restart.
func (s *System) Restart(ctx context.Context) error {
	if s.holder != nil {
		err := s.holder.Reload(ctx)
		result := audit.ResultSuccess
		var details map[string]string
		if err != nil {
			result = audit.ResultFailure
			details = map[string]string{"error": err.Error()}
		}
		s.Audit.ConfigReload(log.UserFromContext(ctx), result, details)
	}
	return s.Engine.Restart(ctx)
}

func appsFromConfig(entries []config.AppEntry) []process.App {
	apps := make([]process.App, 0, len(entries))
	for _, e := range entries {
		apps = append(apps, process.App{Name: e.Name, Icon: e.Icon, Command: e.Command})
	}
	return apps
}

func newHealthManager(cfg config.AppConfig, eng *engine.Engine, c cache.Cache) *health.Manager {
	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewEngineChecker(eng.Ready))
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))

	maxAge := time.Duration(0)
	if cfg.Scheduler.AutosaveInterval > 0 {
		maxAge = 3 * cfg.Scheduler.AutosaveInterval
	}
	hm.RegisterChecker(health.NewLastSaveChecker(func() (time.Time, string) {
		info, err := eng.Info()
		if err != nil {
			return time.Time{}, err.Error()
		}
		return info.LastSave, info.LastSaveErr
	}, maxAge))

	if p, ok := c.(interface{ HealthCheck(context.Context) error }); ok {
		hm.RegisterChecker(health.NewPingChecker("cache", p.HealthCheck))
	}
	return hm
}
