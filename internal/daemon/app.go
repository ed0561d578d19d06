// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/log"
)

// App owns the long-lived runtime lifecycle (config watcher, reload wiring)
// and delegates server management to the System's Manager.
type App struct {
	logger       zerolog.Logger
	sys          *System
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder may be nil when the
// daemon runs without a config file.
func NewApp(logger zerolog.Logger, sys *System, cfgHolder *config.ConfigHolder) *App {
	return &App{
		logger:       logger,
		sys:          sys,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts the background subsystems and blocks until ctx is cancelled or
// a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.sys == nil || a.sys.Manager == nil {
		return ErrNoSystem
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if it cannot start.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	// SIGHUP reloads the config and restarts the engine from disk.
	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "system.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, restarting engine")
					a.reload(ctx)
				}
			}
		})
	}

	g.Go(func() error {
		err := a.sys.Manager.Start(ctx)
		if err != nil && !errors.Is(err, ErrManagerNotStarted) {
			_ = a.sys.Manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// apply pushes the settings that can change at runtime. Everything else
// needs a daemon restart and is only logged by the holder.
func (a *App) apply(cfg config.AppConfig) {
	log.Configure(log.Config{Level: cfg.LogLevel, Service: ServiceName, Version: cfg.Version})
	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Msg("runtime configuration applied")
}

func (a *App) reload(ctx context.Context) {
	reloadCtx := log.ContextWithUser(context.WithoutCancel(ctx), "signal")
	err := a.sys.Restart(reloadCtx)
	a.sys.Audit.SystemRestart(reloadCtx, err)
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "system.reload_failed").Msg("engine restart failed")
	}
}
