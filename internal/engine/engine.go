// SPDX-License-Identifier: MIT

// Package engine is the kernel of the system. It owns the sandbox, the
// module registry, the global variables and the state store, and persists a
// full snapshot after every mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/modules"
	"github.com/ManuGH/minios/internal/notify"
	"github.com/ManuGH/minios/internal/sandbox"
	"github.com/ManuGH/minios/internal/state"
	"github.com/ManuGH/minios/internal/vars"
)

var (
	ErrNotBooted = errors.New("engine not booted")
	ErrShutdown  = errors.New("engine shut down")
)

// Config selects where and how the engine keeps its data.
type Config struct {
	Root          string
	StateBackend  string
	AdminEmail    string
	AdminPassword string
	// BcryptCost overrides the password hashing cost; 0 keeps the default.
	BcryptCost int
}

// Engine is the kernel. All exported methods are safe for concurrent use.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	hub    *notify.Hub

	// mu serialises boot, save, restart and shutdown.
	mu      sync.Mutex
	fs      *sandbox.FS
	modules *modules.Registry
	vars    *vars.Store
	store   state.Store
	closed  bool

	lastSave    time.Time
	lastSaveErr error
}

// New returns an engine that has not touched the disk yet. hub may be nil,
// in which case a private hub is used.
func New(cfg Config, hub *notify.Hub) *Engine {
	if cfg.StateBackend == "" {
		cfg.StateBackend = "json"
	}
	if hub == nil {
		hub = notify.NewHub(notify.DefaultHistory)
	}
	var opts []modules.Option
	if cfg.BcryptCost > 0 {
		opts = append(opts, modules.WithBcryptCost(cfg.BcryptCost))
	}
	return &Engine{
		cfg:     cfg,
		logger:  log.WithComponent("engine"),
		hub:     hub,
		modules: modules.NewRegistry(opts...),
		vars:    vars.New(),
	}
}

// Boot creates the sandbox root and trash, loads the saved state, registers
// defaults and writes a first snapshot.
func (e *Engine) Boot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrShutdown
	}
	if e.store != nil {
		return nil
	}

	fs, err := sandbox.New(e.cfg.Root)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	store, err := state.Open(ctx, e.cfg.StateBackend, fs.Root())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	e.fs = fs
	e.store = store

	if err := e.loadLocked(ctx); err != nil {
		e.store = nil
		_ = store.Close()
		return err
	}
	if err := e.saveLocked(ctx); err != nil {
		e.store = nil
		_ = store.Close()
		return err
	}
	e.attachHooks()

	metrics.IncEngineBoot("start")
	e.logger.Info().
		Str(log.FieldEvent, "engine.booted").
		Str(log.FieldPath, fs.Root()).
		Str(log.FieldBackend, e.cfg.StateBackend).
		Msg("engine booted")
	return nil
}

// loadLocked applies the stored snapshot, or defaults when none exists.
func (e *Engine) loadLocked(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNoState):
		e.logger.Info().Str(log.FieldEvent, "engine.fresh_state").Msg("no saved state, starting from defaults")
		snap = state.Snapshot{}
	case err != nil:
		return fmt.Errorf("load state: %w", err)
	}

	e.vars.Replace(snap.Variables)
	if err := e.modules.Import(snap.Users, snap.CRUD); err != nil {
		return fmt.Errorf("import modules: %w", err)
	}
	e.fs.LoadTrashIndex(snap.TrashIndex)

	if _, err := e.modules.EnsureDefaults(e.cfg.AdminEmail, e.cfg.AdminPassword); err != nil {
		return fmt.Errorf("register defaults: %w", err)
	}
	metrics.SetTrashItems(len(e.fs.TrashItems()))
	return nil
}

// attachHooks makes every component mutation persist a snapshot. Hooks run
// after the component released its locks.
func (e *Engine) attachHooks() {
	e.fs.SetChangeHook(e.persist)
	e.modules.SetChangeHook(e.persist)
	e.vars.SetChangeHook(e.persist)
}

func (e *Engine) detachHooks() {
	e.fs.SetChangeHook(nil)
	e.modules.SetChangeHook(nil)
	e.vars.SetChangeHook(nil)
}

func (e *Engine) persist() {
	if err := e.Save(context.Background()); err != nil {
		e.logger.Error().Err(err).Str(log.FieldEvent, "engine.autosave_failed").Msg("failed to persist state after change")
	}
}

// Snapshot returns the current state without saving it.
func (e *Engine) Snapshot() (state.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return state.Snapshot{}, ErrNotBooted
	}
	return e.snapshotLocked(), nil
}

func (e *Engine) snapshotLocked() state.Snapshot {
	users, crud := e.modules.Export()
	return state.Snapshot{
		Variables:  e.vars.All(),
		TrashIndex: e.fs.TrashIndex(),
		Users:      users,
		CRUD:       crud,
		SavedAt:    time.Now().UTC(),
	}
}

// Save writes a full snapshot.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrShutdown
	}
	if e.store == nil {
		return ErrNotBooted
	}
	return e.saveLocked(ctx)
}

func (e *Engine) saveLocked(ctx context.Context) error {
	start := time.Now()
	snap := e.snapshotLocked()
	err := e.store.Save(ctx, snap)
	metrics.ObserveStateSave(e.cfg.StateBackend, time.Since(start), err)
	metrics.SetTrashItems(len(snap.TrashIndex))
	e.lastSaveErr = err
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	e.lastSave = snap.SavedAt
	e.logger.Debug().
		Str(log.FieldEvent, "engine.saved").
		Dur("duration", time.Since(start)).
		Msg("state saved")
	return nil
}

// Restart saves, reloads everything from the store and announces the reboot.
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrShutdown
	}
	if e.store == nil {
		e.mu.Unlock()
		return ErrNotBooted
	}

	e.detachHooks()
	err := e.saveLocked(ctx)
	if err == nil {
		err = e.loadLocked(ctx)
	}
	e.attachHooks()
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	metrics.IncEngineBoot("restart")
	e.logger.Info().Str(log.FieldEvent, "engine.restarted").Msg("engine restarted")
	e.hub.Notify("System", "MiniOS restarted", notify.SourceSystem)
	return nil
}

// Shutdown saves a final snapshot and closes the store. It is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.store == nil {
		return nil
	}

	e.detachHooks()
	saveErr := e.saveLocked(ctx)
	closeErr := e.store.Close()
	e.logger.Info().Str(log.FieldEvent, "engine.shutdown").Msg("engine shut down")
	return errors.Join(saveErr, closeErr)
}

// FS returns the sandbox. Nil before Boot.
func (e *Engine) FS() *sandbox.FS {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fs
}

func (e *Engine) Modules() *modules.Registry { return e.modules }

func (e *Engine) Vars() *vars.Store { return e.vars }

func (e *Engine) Notifier() *notify.Hub { return e.hub }

// Ready reports whether the engine is booted and not shut down.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store != nil && !e.closed
}

// Info summarises the running system.
type Info struct {
	Root        string         `json:"root"`
	Backend     string         `json:"state_backend"`
	Variables   map[string]any `json:"variables"`
	Modules     []modules.Info `json:"modules"`
	TrashItems  int            `json:"trash_items"`
	LastSave    time.Time      `json:"last_save"`
	LastSaveErr string         `json:"last_save_error,omitempty"`
}

// Info returns a summary for the system info endpoint.
func (e *Engine) Info() (Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return Info{}, ErrNotBooted
	}
	info := Info{
		Root:       e.fs.Root(),
		Backend:    e.cfg.StateBackend,
		Variables:  e.vars.All(),
		Modules:    e.modules.Describe(),
		TrashItems: len(e.fs.TrashItems()),
		LastSave:   e.lastSave,
	}
	if e.lastSaveErr != nil {
		info.LastSaveErr = e.lastSaveErr.Error()
	}
	return info, nil
}
