// SPDX-License-Identifier: MIT

// Package scheduler runs the engine's periodic background jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/process"
)

// Job names, also used as metric labels.
const (
	JobAutosave       = "autosave"
	JobTrashRetention = "trash-retention"
	JobProcessReap    = "process-reap"
)

// DefaultReapInterval is how often exited processes are dropped from the table.
const DefaultReapInterval = time.Minute

// jobTimeout bounds a single run so Stop never waits on a wedged save.
const jobTimeout = 30 * time.Second

// Deps are the components the jobs operate on. Procs may be nil.
type Deps struct {
	Engine       *engine.Engine
	Procs        *process.Table
	Config       config.SchedulerConfig
	ReapInterval time.Duration
}

// Scheduler wraps a gocron scheduler with the engine jobs registered.
type Scheduler struct {
	s      gocron.Scheduler
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	names  []string
}

// New creates a scheduler and registers every job enabled by deps.Config.
// Jobs only run after Start.
func New(deps Deps) (*Scheduler, error) {
	if deps.Engine == nil {
		return nil, errors.New("scheduler: engine is required")
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sch := &Scheduler{
		s:      s,
		logger: log.WithComponent("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}

	cfg := deps.Config
	if cfg.AutosaveInterval > 0 {
		if err := sch.add(JobAutosave, cfg.AutosaveInterval, func(ctx context.Context) error {
			return deps.Engine.Save(ctx)
		}); err != nil {
			return nil, sch.abort(err)
		}
	}
	if cfg.TrashRetention > 0 && cfg.TrashSweepInterval > 0 {
		retention := cfg.TrashRetention
		if err := sch.add(JobTrashRetention, cfg.TrashSweepInterval, func(context.Context) error {
			fs := deps.Engine.FS()
			if fs == nil {
				return engine.ErrNotBooted
			}
			n, err := fs.PurgeOlderThan(retention)
			metrics.AddTrashPurged("retention", n)
			return err
		}); err != nil {
			return nil, sch.abort(err)
		}
	}
	if deps.Procs != nil {
		interval := deps.ReapInterval
		if interval <= 0 {
			interval = DefaultReapInterval
		}
		if err := sch.add(JobProcessReap, interval, func(context.Context) error {
			if n := deps.Procs.Reap(); n > 0 {
				sch.logger.Debug().Int("reaped", n).Msg("exited processes reaped")
			}
			return nil
		}); err != nil {
			return nil, sch.abort(err)
		}
	}
	return sch, nil
}

func (s *Scheduler) add(name string, interval time.Duration, fn func(context.Context) error) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.names = append(s.names, name)
	s.logger.Debug().Str("job", name).Dur("interval", interval).Msg("job registered")
	return nil
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.IncSchedulerJob(name, err)
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "scheduler.job_failed").Str("job", name).Msg("scheduled job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("scheduled job completed")
}

func (s *Scheduler) abort(err error) error {
	s.cancel()
	_ = s.s.Shutdown()
	return err
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	out := append([]string(nil), s.names...)
	sort.Strings(out)
	return out
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.s.Start()
	s.logger.Info().Str(log.FieldEvent, "scheduler.started").Strs("jobs", s.Jobs()).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	s.logger.Info().Str(log.FieldEvent, "scheduler.stopped").Msg("scheduler stopped")
	return nil
}
