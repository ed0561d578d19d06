// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/notify"
	"github.com/ManuGH/minios/internal/process"
)

type fixture struct {
	term  *Terminal
	eng   *engine.Engine
	hub   *notify.Hub
	procs *process.Table
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	hub := notify.NewHub(20)
	eng := engine.New(engine.Config{
		Root:          t.TempDir(),
		AdminEmail:    "admin@ptpy.os",
		AdminPassword: "admin",
		BcryptCost:    bcrypt.MinCost,
	}, hub)
	require.NoError(t, eng.Boot(context.Background()))

	procs, err := process.NewTable(nil, process.Options{Dir: eng.FS().Root()})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = procs.Close(context.Background())
		_ = eng.Shutdown(context.Background())
		_ = hub.Close()
	})
	return &fixture{term: New(eng, procs, opts), eng: eng, hub: hub, procs: procs}
}

func (f *fixture) exec(t *testing.T, input string) Result {
	t.Helper()
	return f.term.Exec(context.Background(), input)
}

func TestExec_EmptyInputIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.exec(t, "   ")
	assert.Empty(t, res.Lines)
	assert.NoError(t, res.Err)
	assert.Empty(t, f.term.History())
}

func TestHistory_DedupAndBound(t *testing.T) {
	f := newFixture(t, Options{HistorySize: 3})
	for _, in := range []string{"help", "help", "vars", "ps", "modules"} {
		f.exec(t, in)
	}
	assert.Equal(t, []string{"vars", "ps", "modules"}, f.term.History())

	res := f.exec(t, "history")
	require.NoError(t, res.Err)
	assert.Len(t, res.Lines, 3)
	assert.Contains(t, res.Lines[2], "history")
}

func TestHelp_ListsCommands(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.exec(t, "HELP")
	require.NoError(t, res.Err)
	joined := strings.Join(res.Lines, "\n")
	for _, c := range f.term.Commands() {
		assert.Contains(t, joined, c)
	}
}

func TestOpen(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.exec(t, "open terminal")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Lines[0], "Opening 'Terminal'")
	require.Len(t, f.procs.List(), 1)

	res = f.exec(t, "open")
	assert.True(t, IsUsage(res.Err))
	assert.True(t, strings.HasPrefix(res.Lines[len(res.Lines)-1], "Error: "))

	res = f.exec(t, "open Solitaire")
	assert.ErrorIs(t, res.Err, process.ErrUnknownApp)

	ps := f.exec(t, "ps")
	require.NoError(t, ps.Err)
	assert.Len(t, ps.Lines, 2)

	pid := f.procs.List()[0].PID
	res = f.exec(t, "kill "+pid)
	require.NoError(t, res.Err)
	p, err := f.procs.Get(pid)
	require.NoError(t, err)
	assert.Equal(t, process.StateExited, p.State)
}

func TestNotify(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.exec(t, "notify hello world")
	require.NoError(t, res.Err)

	recent := f.hub.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "Terminal", recent[0].Title)
	assert.Equal(t, "hello world", recent[0].Message)
}

func TestFileCommands(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.exec(t, "mkdir docs").Err)
	require.NoError(t, f.exec(t, "write notes.txt line one").Err)

	res := f.exec(t, "cat notes.txt")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"line one"}, res.Lines)

	require.NoError(t, f.exec(t, "mv notes.txt docs").Err)
	require.NoError(t, f.exec(t, "rename docs/notes.txt todo.txt").Err)

	res = f.exec(t, "ls docs")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"todo.txt"}, res.Lines)

	res = f.exec(t, "ls")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"docs/"}, res.Lines)

	res = f.exec(t, "cat ../etc/passwd")
	assert.Error(t, res.Err)
}

func TestTrashAndRestore(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.exec(t, "write a.txt first").Err)

	res := f.exec(t, "trash a.txt")
	require.NoError(t, res.Err)
	assert.Equal(t, "'a.txt' moved to Trash.", res.Lines[0])
	assert.Equal(t, "Trash", f.hub.Recent(1)[0].Title)

	// a newer a.txt is trashed later and wins the restore
	require.NoError(t, f.exec(t, "write a.txt second").Err)
	require.NoError(t, f.exec(t, "trash a.txt").Err)

	res = f.exec(t, "trashls")
	require.NoError(t, res.Err)
	assert.Len(t, res.Lines, 2)

	res = f.exec(t, "restore a.txt")
	require.NoError(t, res.Err)
	content, err := f.eng.FS().ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", content)

	res = f.exec(t, "restore a.txt")
	assert.Error(t, res.Err, "original path is occupied")
	assert.Len(t, f.eng.FS().TrashItems(), 1)

	res = f.exec(t, "restore missing.txt")
	assert.Error(t, res.Err)
	assert.Contains(t, res.Lines[0], "not found in Trash")

	res = f.exec(t, "emptytrash")
	require.NoError(t, res.Err)
	assert.Equal(t, "Removed 1 item(s) from Trash.", res.Lines[0])
}

func TestVariableCommands(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.exec(t, `set config {"a": 1}`)
	require.NoError(t, res.Err)
	assert.Equal(t, `config = {"a":1}`, res.Lines[0])

	res = f.exec(t, "set greeting hello there")
	require.NoError(t, res.Err)
	v, ok := f.eng.Vars().Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello there", v)

	res = f.exec(t, "get system_name")
	require.NoError(t, res.Err)
	assert.Equal(t, `"PTPY Mini OS"`, res.Lines[0])

	res = f.exec(t, "vars")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Lines, `version = "1.5"`)

	require.NoError(t, f.exec(t, "unset greeting").Err)
	assert.Error(t, f.exec(t, "unset greeting").Err)
	assert.Error(t, f.exec(t, "get greeting").Err)
	assert.Error(t, f.exec(t, "set 1bad x").Err)
}

func TestModulesCommand(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.exec(t, "modules")
	require.NoError(t, res.Err)
	require.Len(t, res.Lines, 2)
	assert.True(t, strings.HasPrefix(res.Lines[0], "login"))
	assert.Contains(t, res.Lines[1], "description, status")
}

func TestGoEvaluation(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.exec(t, "1 + 2")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"3"}, res.Lines)

	res = f.exec(t, `minios.Get("version")`)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1.5"}, res.Lines)

	require.NoError(t, f.exec(t, `x := 20`).Err)
	res = f.exec(t, `x * 2`)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"40"}, res.Lines)

	res = f.exec(t, `fmt.Println("hi")`)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"hi"}, res.Lines, "the byte count is not echoed")

	res = f.exec(t, `fmt.Sprintf("%d-%d", 1, 2)`)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"1-2"}, res.Lines)

	require.NoError(t, f.exec(t, `minios.Set("answer", 42)`).Err)
	v, ok := f.eng.Vars().Get("answer")
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	res = f.exec(t, `import "os"`)
	assert.Error(t, res.Err, "os is not importable")

	res = f.exec(t, "this is not go")
	assert.Error(t, res.Err)
}

func TestIsPrintCall(t *testing.T) {
	for input, want := range map[string]bool{
		`fmt.Println("hi")`:       true,
		` fmt.Printf("%d", 1) `:   true,
		`fmt.Sprintf("%d", 1)`:    false,
		`minios.Get("version")`:   false,
		`x := 1`:                  false,
		`fmt.Println("a"); 1 + 2`: false,
	} {
		assert.Equal(t, want, isPrintCall(input), input)
	}
}

func TestRunBatchScript(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.eng.FS().CreateFile("setup.txt", "# comment\n\nset mode batch\nnotify done\n"))

	res := f.exec(t, "run setup.txt")
	require.NoError(t, res.Err)
	assert.Equal(t, "Running script 'setup.txt'...", res.Lines[0])
	assert.Contains(t, res.Lines, "> set mode batch")
	assert.Equal(t, "Script 'setup.txt' finished.", res.Lines[len(res.Lines)-1])

	v, _ := f.eng.Vars().Get("mode")
	assert.Equal(t, "batch", v)

	require.NoError(t, f.eng.FS().CreateFile("loop.txt", "run loop.txt\n"))
	res = f.exec(t, "run loop.txt")
	assert.ErrorIs(t, res.Err, ErrScriptTooDeep)

	res = f.exec(t, "run nothing.txt")
	assert.Error(t, res.Err)
}

func TestRunLuaScript(t *testing.T) {
	f := newFixture(t, Options{})
	script := `
local name = getvar("system_name")
print("hello from", name)
setvar("lua_list", {1, 2, 3})
setvar("lua_map", {k = "v"})
write_file("out.txt", "written by lua")
notify("lua says hi")
`
	require.NoError(t, f.eng.FS().CreateFile("hello.lua", script))

	res := f.exec(t, "run hello.lua")
	require.NoError(t, res.Err, res.Lines)
	assert.Contains(t, res.Lines, "hello from\tPTPY Mini OS")

	list, ok := f.eng.Vars().Get("lua_list")
	require.True(t, ok)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, list)
	m, _ := f.eng.Vars().Get("lua_map")
	assert.Equal(t, map[string]any{"k": "v"}, m)

	content, err := f.eng.FS().ReadFile("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "written by lua", content)
	assert.Equal(t, "lua says hi", f.hub.Recent(1)[0].Message)
}

func TestRunLuaScript_ErrorsAndSandbox(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.eng.FS().CreateFile("bad.lua", `error("boom")`))
	res := f.exec(t, "run bad.lua")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")

	require.NoError(t, f.eng.FS().CreateFile("escape.lua", `read_file("../../etc/passwd")`))
	assert.Error(t, f.exec(t, "run escape.lua").Err)

	require.NoError(t, f.eng.FS().CreateFile("io.lua", `io.open("x")`))
	assert.Error(t, f.exec(t, "run io.lua").Err, "io library is not loaded")
}

func TestRunLuaScript_Timeout(t *testing.T) {
	f := newFixture(t, Options{ScriptTimeout: 100 * time.Millisecond})
	require.NoError(t, f.eng.FS().CreateFile("spin.lua", `while true do end`))

	start := time.Now()
	res := f.exec(t, "run spin.lua")
	require.Error(t, res.Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunGoScript(t *testing.T) {
	f := newFixture(t, Options{})
	program := `package main

import (
	"fmt"
	"minios"
)

func main() {
	fmt.Println("sum", 2+3)
	minios.Set("from_go", "yes")
}
`
	require.NoError(t, f.eng.FS().CreateFile("prog.go", program))
	res := f.exec(t, "run prog.go")
	require.NoError(t, res.Err, res.Lines)
	assert.Contains(t, res.Lines, "sum 5")
	v, _ := f.eng.Vars().Get("from_go")
	assert.Equal(t, "yes", v)

	require.NoError(t, f.eng.FS().CreateFile("snippet.go", `minios.Notify("snippet")`))
	res = f.exec(t, "run snippet.go")
	require.NoError(t, res.Err, res.Lines)
	assert.Equal(t, "snippet", f.hub.Recent(1)[0].Message)
}

func TestSplitCommand(t *testing.T) {
	word, arg := splitCommand("OPEN  Web Browser ")
	assert.Equal(t, "open", word)
	assert.Equal(t, "Web Browser", arg)

	word, arg = splitCommand("ps")
	assert.Equal(t, "ps", word)
	assert.Empty(t, arg)
}
