// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ManuGH/minios/internal/metrics"
	"github.com/ManuGH/minios/internal/notify"
	"github.com/ManuGH/minios/internal/vars"
)

func (t *Terminal) registerCommands() {
	t.register("help", "help", "show this help", t.cmdHelp)
	t.register("open", "open <app>", "launch an application (e.g. open Terminal)", t.cmdOpen)
	t.register("notify", "notify <msg>", "show a notification", t.cmdNotify)
	t.register("run", "run <script>", "run a sandbox script (.lua, .go or command list)", t.cmdRun)
	t.register("trash", "trash <file>", "move a file to the trash", t.cmdTrash)
	t.register("restore", "restore <file>", "restore a file from the trash", t.cmdRestore)
	t.register("ls", "ls [dir]", "list a folder", t.cmdLs)
	t.register("cat", "cat <file>", "print a file", t.cmdCat)
	t.register("write", "write <file> <text>", "create or overwrite a file", t.cmdWrite)
	t.register("mkdir", "mkdir <dir>", "create a folder", t.cmdMkdir)
	t.register("mv", "mv <src> <dstdir>", "move into a folder", t.cmdMv)
	t.register("rename", "rename <src> <name>", "rename in place", t.cmdRename)
	t.register("trashls", "trashls", "list the trash", t.cmdTrashLs)
	t.register("emptytrash", "emptytrash", "permanently delete the trash", t.cmdEmptyTrash)
	t.register("vars", "vars", "list global variables", t.cmdVars)
	t.register("get", "get <name>", "print a variable", t.cmdGet)
	t.register("set", "set <name> <json-or-text>", "set a variable", t.cmdSet)
	t.register("unset", "unset <name>", "delete a variable", t.cmdUnset)
	t.register("ps", "ps", "list processes", t.cmdPs)
	t.register("kill", "kill <pid>", "end a process", t.cmdKill)
	t.register("history", "history", "show command history", t.cmdHistory)
	t.register("modules", "modules", "list modules", t.cmdModules)
}

func (t *Terminal) cmdHelp(context.Context, string) ([]string, error) {
	lines := []string{"PTPY automation commands:"}
	for _, name := range t.order {
		c := t.cmds[name]
		lines = append(lines, fmt.Sprintf("  %-26s - %s", c.usage, c.help))
	}
	lines = append(lines, "Anything else is evaluated as Go (import \"minios\" for engine access).")
	return lines, nil
}

func (t *Terminal) cmdOpen(ctx context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("open <app> (e.g. open Terminal)")
	}
	if t.procs == nil {
		return nil, ErrNoProcessTable
	}
	p, err := t.procs.Launch(ctx, arg)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Opening '%s'... (pid %s)", p.App, p.PID)}, nil
}

func (t *Terminal) cmdNotify(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("notify <msg>")
	}
	t.eng.Notifier().Notify("Terminal", arg, notify.SourceTerminal)
	return []string{"Notification sent."}, nil
}

func (t *Terminal) cmdTrash(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("trash <file>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	if _, err := fs.Delete(arg); err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("'%s' moved to Trash.", arg)
	t.eng.Notifier().Notify("Trash", msg, notify.SourceTerminal)
	return []string{msg}, nil
}

func (t *Terminal) cmdRestore(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("restore <file>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	item, err := fs.FindTrashByName(arg)
	if err != nil {
		return nil, fmt.Errorf("'%s' not found in Trash", arg)
	}
	if _, err := fs.Restore(item.ID); err != nil {
		return nil, fmt.Errorf("restore failed: %w", err)
	}
	msg := fmt.Sprintf("'%s' restored.", arg)
	t.eng.Notifier().Notify("Trash", msg, notify.SourceTerminal)
	return []string{msg}, nil
}

func (t *Terminal) cmdLs(_ context.Context, arg string) ([]string, error) {
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	folders, files, err := fs.ListDir(arg)
	if err != nil {
		return nil, err
	}
	if len(folders)+len(files) == 0 {
		return []string{"(empty)"}, nil
	}
	lines := make([]string, 0, len(folders)+len(files))
	for _, d := range folders {
		lines = append(lines, d+"/")
	}
	return append(lines, files...), nil
}

func (t *Terminal) cmdCat(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("cat <file>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	content, err := fs.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	return splitLines(content), nil
}

func (t *Terminal) cmdWrite(_ context.Context, arg string) ([]string, error) {
	name, text := splitPair(arg)
	if name == "" {
		return nil, usage("write <file> <text>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	if err := fs.CreateFile(name, text); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Wrote %d bytes to '%s'.", len(text), name)}, nil
}

func (t *Terminal) cmdMkdir(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("mkdir <dir>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	if err := fs.CreateFolder(arg); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Folder '%s' created.", arg)}, nil
}

func (t *Terminal) cmdMv(_ context.Context, arg string) ([]string, error) {
	src, dst := splitPair(arg)
	if src == "" || dst == "" {
		return nil, usage("mv <src> <dstdir>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	moved, err := fs.Move(src, dst)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Moved '%s' to '%s'.", src, moved)}, nil
}

func (t *Terminal) cmdRename(_ context.Context, arg string) ([]string, error) {
	src, name := splitPair(arg)
	if src == "" || name == "" {
		return nil, usage("rename <src> <name>")
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	renamed, err := fs.Rename(src, name)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Renamed '%s' to '%s'.", src, renamed)}, nil
}

func (t *Terminal) cmdTrashLs(context.Context, string) ([]string, error) {
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	items := fs.TrashItems()
	if len(items) == 0 {
		return []string{"(trash is empty)"}, nil
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s  %s  %s", it.ID, it.OriginalPath, it.DeletedAt.Format(time.RFC3339)))
	}
	return lines, nil
}

func (t *Terminal) cmdEmptyTrash(context.Context, string) ([]string, error) {
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	n, err := fs.EmptyTrash()
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Removed %d item(s) from Trash.", n)}, nil
}

func (t *Terminal) cmdVars(context.Context, string) ([]string, error) {
	all := t.eng.Vars().All()
	lines := make([]string, 0, len(all))
	for _, k := range sortedKeys(all) {
		lines = append(lines, fmt.Sprintf("%s = %s", k, formatValue(all[k])))
	}
	return lines, nil
}

func (t *Terminal) cmdGet(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("get <name>")
	}
	v, ok := t.eng.Vars().Get(arg)
	if !ok {
		return nil, fmt.Errorf("variable '%s' is not set", arg)
	}
	return []string{formatValue(v)}, nil
}

func (t *Terminal) cmdSet(_ context.Context, arg string) ([]string, error) {
	name, raw := splitPair(arg)
	if name == "" || raw == "" {
		return nil, usage("set <name> <json-or-text>")
	}
	if err := t.eng.Vars().Set(name, vars.ParseValue(raw)); err != nil {
		return nil, err
	}
	v, _ := t.eng.Vars().Get(name)
	return []string{fmt.Sprintf("%s = %s", name, formatValue(v))}, nil
}

func (t *Terminal) cmdUnset(_ context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("unset <name>")
	}
	if !t.eng.Vars().Delete(arg) {
		return nil, fmt.Errorf("variable '%s' is not set", arg)
	}
	return []string{fmt.Sprintf("Removed '%s'.", arg)}, nil
}

func (t *Terminal) cmdPs(context.Context, string) ([]string, error) {
	if t.procs == nil {
		return nil, ErrNoProcessTable
	}
	procs := t.procs.List()
	if len(procs) == 0 {
		return []string{"(no processes)"}, nil
	}
	lines := []string{fmt.Sprintf("%-36s  %-10s  %s", "PID", "STATE", "APP")}
	for _, p := range procs {
		lines = append(lines, fmt.Sprintf("%-36s  %-10s  %s", p.PID, p.State, p.App))
	}
	return lines, nil
}

func (t *Terminal) cmdKill(ctx context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("kill <pid>")
	}
	if t.procs == nil {
		return nil, ErrNoProcessTable
	}
	p, err := t.procs.Kill(ctx, arg)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Process %s (%s) ended.", p.PID, p.App)}, nil
}

func (t *Terminal) cmdHistory(context.Context, string) ([]string, error) {
	lines := make([]string, 0, len(t.history))
	for i, h := range t.history {
		lines = append(lines, fmt.Sprintf("%4d  %s", i+1, h))
	}
	return lines, nil
}

func (t *Terminal) cmdModules(context.Context, string) ([]string, error) {
	infos := t.eng.Modules().Describe()
	lines := make([]string, 0, len(infos))
	for _, m := range infos {
		line := fmt.Sprintf("%-16s %-6s %d", m.Name, m.Kind, m.Count)
		if len(m.Fields) > 0 {
			line += "  [" + strings.Join(m.Fields, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (t *Terminal) cmdRun(ctx context.Context, arg string) ([]string, error) {
	if arg == "" {
		return nil, usage("run <script>")
	}
	depth := scriptDepth(ctx)
	if depth >= maxScriptDepth {
		return nil, ErrScriptTooDeep
	}
	fs, err := t.fs()
	if err != nil {
		return nil, err
	}
	src, err := fs.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("script '%s': %w", arg, err)
	}

	ctx = context.WithValue(ctx, depthKey{}, depth+1)
	if depth == 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.ScriptTimeout)
		defer cancel()
	}

	lang := scriptLang(arg)
	lines := []string{fmt.Sprintf("Running script '%s'...", arg)}
	var out []string
	switch lang {
	case "lua":
		out, err = t.runLua(ctx, arg, src)
	case "go":
		out, err = t.runGoScript(ctx, arg, src)
	default:
		out, err = t.runBatch(ctx, src)
	}
	metrics.IncScriptRun(lang, err)
	lines = append(lines, out...)
	if err != nil {
		return lines, fmt.Errorf("script '%s': %w", arg, err)
	}
	return append(lines, fmt.Sprintf("Script '%s' finished.", arg)), nil
}

func scriptLang(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".lua":
		return "lua"
	case ".go":
		return "go"
	default:
		return "batch"
	}
}

// runBatch executes every non-empty, non-comment line as a command and stops
// at the first failure.
func (t *Terminal) runBatch(ctx context.Context, src string) ([]string, error) {
	var lines []string
	for _, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return lines, err
		}
		lines = append(lines, "> "+line)
		res := t.exec(ctx, line)
		if res.Err != nil {
			// exec already appended the "Error:" line
			lines = append(lines, res.Lines[:len(res.Lines)-1]...)
			return lines, res.Err
		}
		lines = append(lines, res.Lines...)
	}
	return lines, nil
}

// formatValue renders a variable as JSON, falling back to fmt.
func formatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool { return errors.Is(err, ErrUsage) }
