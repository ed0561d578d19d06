// SPDX-License-Identifier: MIT

// Package shell implements the automation terminal: a fixed command set over
// the engine, script execution and Go evaluation for everything else.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"

	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/process"
	"github.com/ManuGH/minios/internal/sandbox"
)

const (
	DefaultScriptTimeout = 10 * time.Second
	DefaultHistorySize   = 500
	maxScriptDepth       = 4
)

var (
	ErrUsage          = errors.New("usage")
	ErrScriptTooDeep  = errors.New("scripts nested too deeply")
	ErrNoProcessTable = errors.New("process management unavailable")
)

// Result is the output of one terminal input.
type Result struct {
	Lines []string `json:"lines"`
	Err   error    `json:"-"`
}

// Failed reports whether the command returned an error.
func (r Result) Failed() bool { return r.Err != nil }

// Options tunes a Terminal.
type Options struct {
	ScriptTimeout time.Duration
	HistorySize   int
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, arg string) ([]string, error)
}

// Terminal interprets input lines. Exec calls are serialised.
type Terminal struct {
	eng    *engine.Engine
	procs  *process.Table
	opts   Options
	logger zerolog.Logger
	cmds   map[string]command
	order  []string

	mu      sync.Mutex
	history []string
	goi     *interp.Interpreter
	goOut   bytes.Buffer
}

// New returns a terminal over eng. procs may be nil, which disables the
// process commands.
func New(eng *engine.Engine, procs *process.Table, opts Options) *Terminal {
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = DefaultScriptTimeout
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	t := &Terminal{
		eng:    eng,
		procs:  procs,
		opts:   opts,
		logger: log.WithComponent("shell"),
	}
	t.registerCommands()
	return t
}

func (t *Terminal) register(name, usage, help string, run func(ctx context.Context, arg string) ([]string, error)) {
	if t.cmds == nil {
		t.cmds = make(map[string]command)
	}
	t.cmds[name] = command{usage: usage, help: help, run: run}
	t.order = append(t.order, name)
}

// Commands returns the command words in help order.
func (t *Terminal) Commands() []string {
	return append([]string(nil), t.order...)
}

// Exec runs one input line. Empty input yields an empty result and is not
// recorded in the history.
func (t *Terminal) Exec(ctx context.Context, input string) Result {
	input = strings.TrimSpace(input)
	if input == "" {
		return Result{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(input)
	return t.exec(ctx, input)
}

func (t *Terminal) exec(ctx context.Context, input string) (res Result) {
	word, arg := splitCommand(input)
	label := "eval"

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("internal error: %v", r)}
			t.logger.Error().Interface("panic", r).Str(log.FieldEvent, "shell.panic").Msg("terminal command panicked")
		}
		if res.Err != nil {
			res.Lines = append(res.Lines, "Error: "+res.Err.Error())
		}
		metrics.IncTerminalCommand(label, res.Err)
	}()

	if cmd, ok := t.cmds[word]; ok {
		label = word
		lines, err := cmd.run(ctx, arg)
		return Result{Lines: lines, Err: err}
	}
	lines, err := t.evalGo(ctx, input)
	return Result{Lines: lines, Err: err}
}

// splitCommand returns the lower-cased first word and the unsplit remainder.
func splitCommand(input string) (string, string) {
	i := strings.IndexFunc(input, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(input), ""
	}
	return strings.ToLower(input[:i]), strings.TrimSpace(input[i:])
}

// splitPair splits arg into its first word and the trimmed remainder.
func splitPair(arg string) (string, string) {
	arg = strings.TrimSpace(arg)
	i := strings.IndexFunc(arg, unicode.IsSpace)
	if i < 0 {
		return arg, ""
	}
	return arg[:i], strings.TrimSpace(arg[i:])
}

func (t *Terminal) record(input string) {
	if n := len(t.history); n > 0 && t.history[n-1] == input {
		return
	}
	t.history = append(t.history, input)
	if over := len(t.history) - t.opts.HistorySize; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}
}

// History returns the recorded inputs, oldest first.
func (t *Terminal) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}

func (t *Terminal) fs() (*sandbox.FS, error) {
	fs := t.eng.FS()
	if fs == nil {
		return nil, engine.ErrNotBooted
	}
	return fs, nil
}

func usage(u string) error {
	return fmt.Errorf("%w: %s", ErrUsage, u)
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type depthKey struct{}

func scriptDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}
