// SPDX-License-Identifier: MIT

// Package process keeps the table of launched applications. Built-in apps
// are virtual records; configured apps run a real command in its own
// process group.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/procgroup"
)

var (
	ErrUnknownApp   = errors.New("unknown app")
	ErrNotFound     = errors.New("process not found")
	ErrInvalidState = errors.New("invalid process state")
	ErrDuplicateApp = errors.New("duplicate app name")
	ErrTableClosed  = errors.New("process table closed")
)

// State of a process record.
type State string

const (
	StateRunning   State = "running"
	StateMinimized State = "minimized"
	StateExited    State = "exited"
)

// App is a launchable application. A nil Command marks a virtual app.
type App struct {
	Name    string   `json:"name"`
	Icon    string   `json:"icon,omitempty"`
	Command []string `json:"command,omitempty"`
}

// Virtual reports whether launching the app starts no OS process.
func (a App) Virtual() bool { return len(a.Command) == 0 }

func (a App) kind() string {
	if a.Virtual() {
		return "virtual"
	}
	return "external"
}

// Builtins returns the desktop applications every system has.
func Builtins() []App {
	return []App{
		{Name: "Terminal", Icon: "💻"},
		{Name: "PTPY Code", Icon: "📝"},
		{Name: "File Explorer", Icon: "📁"},
		{Name: "Trash", Icon: "🗑"},
		{Name: "Control Panel", Icon: "⚙"},
		{Name: "Web Browser", Icon: "🌐"},
	}
}

// Process is one entry of the process table.
type Process struct {
	PID       string     `json:"pid"`
	App       string     `json:"app"`
	State     State      `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	OSPid     int        `json:"os_pid,omitempty"`
}

// Live reports whether the process has not exited.
func (p Process) Live() bool { return p.State != StateExited }

type entry struct {
	proc   Process
	cmd    *exec.Cmd
	exited chan struct{}
}

// Options tunes a Table.
type Options struct {
	// Dir is the working directory of external commands.
	Dir string
	// KillGrace is the SIGTERM to SIGKILL delay.
	KillGrace time.Duration
	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration
}

// Table tracks processes.
type Table struct {
	mu      sync.Mutex
	apps    []App
	byKey   map[string]App
	procs   map[string]*entry
	opts    Options
	closed  bool
	now     func() time.Time
	logger  zerolog.Logger
	waiters sync.WaitGroup
}

// NewTable returns a table offering the built-ins plus extra apps.
func NewTable(extra []App, opts Options) (*Table, error) {
	if opts.KillGrace <= 0 {
		opts.KillGrace = 2 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	t := &Table{
		byKey:  make(map[string]App),
		procs:  make(map[string]*entry),
		opts:   opts,
		now:    time.Now,
		logger: log.WithComponent("process"),
	}
	for _, a := range append(Builtins(), extra...) {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrUnknownApp)
		}
		key := t.key(a.Name)
		if _, dup := t.byKey[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateApp, a.Name)
		}
		t.byKey[key] = a
		t.apps = append(t.apps, a)
	}
	return t, nil
}

// key folds name for matching. A Caser is stateful, so each call gets its own.
func (t *Table) key(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Apps returns the launchable applications in declaration order.
func (t *Table) Apps() []App {
	out := make([]App, len(t.apps))
	copy(out, t.apps)
	return out
}

// Resolve finds an app by name, ignoring case.
func (t *Table) Resolve(name string) (App, error) {
	a, ok := t.byKey[t.key(name)]
	if !ok {
		return App{}, fmt.Errorf("%w: %s", ErrUnknownApp, strings.TrimSpace(name))
	}
	return a, nil
}

// Launch starts an app and records it.
func (t *Table) Launch(ctx context.Context, name string) (Process, error) {
	app, err := t.Resolve(name)
	if err != nil {
		return Process{}, err
	}
	if err := ctx.Err(); err != nil {
		return Process{}, err
	}

	e := &entry{proc: Process{
		PID:       uuid.NewString(),
		App:       app.Name,
		State:     StateRunning,
		StartedAt: t.now().UTC(),
	}}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Process{}, ErrTableClosed
	}

	if !app.Virtual() {
		// The command outlives the launching request, so it is not bound to ctx.
		cmd := exec.Command(app.Command[0], app.Command[1:]...)
		cmd.Dir = t.opts.Dir
		procgroup.Set(cmd)
		if err := cmd.Start(); err != nil {
			metrics.IncProcessLaunch(app.kind(), err)
			return Process{}, fmt.Errorf("start %s: %w", app.Name, err)
		}
		e.cmd = cmd
		e.exited = make(chan struct{})
		e.proc.OSPid = cmd.Process.Pid
		t.waiters.Add(1)
		go t.wait(e)
	}

	t.procs[e.proc.PID] = e
	metrics.IncProcessLaunch(app.kind(), nil)
	t.updateLiveLocked()

	t.logger.Info().
		Str(log.FieldEvent, "process.launched").
		Str(log.FieldPID, e.proc.PID).
		Str(log.FieldApp, app.Name).
		Int(log.FieldOSPID, e.proc.OSPid).
		Msg("app launched")
	return e.proc, nil
}

func (t *Table) wait(e *entry) {
	defer t.waiters.Done()
	err := e.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	t.mu.Lock()
	t.markExitedLocked(e, code)
	t.mu.Unlock()
	close(e.exited)

	t.logger.Info().
		Str(log.FieldEvent, "process.exited").
		Str(log.FieldPID, e.proc.PID).
		Int("exit_code", code).
		Msg("app exited")
}

func (t *Table) markExitedLocked(e *entry, code int) {
	if e.proc.State == StateExited {
		return
	}
	now := t.now().UTC()
	e.proc.State = StateExited
	e.proc.ExitedAt = &now
	e.proc.ExitCode = &code
	t.updateLiveLocked()
}

func (t *Table) updateLiveLocked() {
	n := 0
	for _, e := range t.procs {
		if e.proc.Live() {
			n++
		}
	}
	metrics.SetProcessesLive(n)
}

// List returns all records ordered by start time.
func (t *Table) List() []Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Process, 0, len(t.procs))
	for _, e := range t.procs {
		out = append(out, e.proc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].PID < out[j].PID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Get returns one record.
func (t *Table) Get(pid string) (Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.procs[pid]
	if !ok {
		return Process{}, fmt.Errorf("%w: %s", ErrNotFound, pid)
	}
	return e.proc, nil
}

// Minimize moves a running process to the minimized state.
func (t *Table) Minimize(pid string) (Process, error) {
	return t.transition(pid, StateMinimized)
}

// Restore brings a minimized process back to running.
func (t *Table) Restore(pid string) (Process, error) {
	return t.transition(pid, StateRunning)
}

func (t *Table) transition(pid string, to State) (Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.procs[pid]
	if !ok {
		return Process{}, fmt.Errorf("%w: %s", ErrNotFound, pid)
	}
	if e.proc.State == StateExited {
		return Process{}, fmt.Errorf("%w: %s has exited", ErrInvalidState, pid)
	}
	from := e.proc.State
	e.proc.State = to
	t.logger.Debug().
		Str(log.FieldPID, pid).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("process state changed")
	return e.proc, nil
}

// Kill ends a process. Virtual processes exit immediately; external ones get
// their whole group terminated.
func (t *Table) Kill(ctx context.Context, pid string) (Process, error) {
	t.mu.Lock()
	e, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		return Process{}, fmt.Errorf("%w: %s", ErrNotFound, pid)
	}
	if e.proc.State == StateExited {
		p := e.proc
		t.mu.Unlock()
		return p, nil
	}
	if e.cmd == nil {
		t.markExitedLocked(e, 0)
		p := e.proc
		t.mu.Unlock()
		t.logger.Info().Str(log.FieldEvent, "process.killed").Str(log.FieldPID, pid).Msg("virtual app closed")
		return p, nil
	}
	cmd, exited := e.cmd, e.exited
	t.mu.Unlock()

	if err := t.killGroup(ctx, cmd, exited); err != nil {
		return Process{}, err
	}
	return t.Get(pid)
}

func (t *Table) killGroup(ctx context.Context, cmd *exec.Cmd, exited chan struct{}) error {
	errCh := make(chan error, 1)
	go func() { errCh <- procgroup.KillGroup(cmd, exited, t.opts.KillGrace, t.opts.KillTimeout) }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("kill pid %d: %w", cmd.Process.Pid, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reap drops exited records and returns how many were removed.
func (t *Table) Reap() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for pid, e := range t.procs {
		if e.proc.State == StateExited {
			delete(t.procs, pid)
			n++
		}
	}
	return n
}

// Close kills every live process and refuses further launches.
func (t *Table) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	var pids []string
	for pid, e := range t.procs {
		if e.proc.Live() {
			pids = append(pids, pid)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, pid := range pids {
		if _, err := t.Kill(ctx, pid); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		t.waiters.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
