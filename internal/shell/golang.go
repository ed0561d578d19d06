// SPDX-License-Identifier: MIT

package shell

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"path"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/ManuGH/minios/internal/notify"
)

// goPackage is the import path scripts use for engine access.
const goPackage = "minios"

// allowedImports is the standard library subset visible to Go code. Nothing
// here touches the host filesystem, network or processes.
var allowedImports = map[string]bool{
	"bytes":           true,
	"encoding/base64": true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"time":            true,
	"unicode":         true,
}

func allowedSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// keys are "import/path/name"
		if allowedImports[path.Dir(key)] {
			out[key] = syms
		}
	}
	return out
}

// exports binds the engine into the "minios" package.
func (t *Terminal) exports() interp.Exports {
	return interp.Exports{
		goPackage + "/" + goPackage: {
			"Get": reflect.ValueOf(func(name string) any {
				v, _ := t.eng.Vars().Get(name)
				return v
			}),
			"Set": reflect.ValueOf(func(name string, value any) error {
				return t.eng.Vars().Set(name, value)
			}),
			"Delete": reflect.ValueOf(func(name string) bool {
				return t.eng.Vars().Delete(name)
			}),
			"Vars": reflect.ValueOf(func() map[string]any {
				return t.eng.Vars().All()
			}),
			"Notify": reflect.ValueOf(func(msg string) {
				t.eng.Notifier().Notify("Script", msg, notify.SourceScript)
			}),
			"ReadFile": reflect.ValueOf(func(rel string) (string, error) {
				fs, err := t.fs()
				if err != nil {
					return "", err
				}
				return fs.ReadFile(rel)
			}),
			"WriteFile": reflect.ValueOf(func(rel, content string) error {
				fs, err := t.fs()
				if err != nil {
					return err
				}
				return fs.CreateFile(rel, content)
			}),
		},
	}
}

func (t *Terminal) newInterpreter(out *bytes.Buffer) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(allowedSymbols()); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(t.exports()); err != nil {
		return nil, fmt.Errorf("failed to load minios package: %w", err)
	}
	return i, nil
}

// evalGo evaluates input in the terminal's persistent interpreter, so
// declarations survive between inputs. Non-nil results are printed.
func (t *Terminal) evalGo(ctx context.Context, input string) ([]string, error) {
	if t.goi == nil {
		i, err := t.newInterpreter(&t.goOut)
		if err != nil {
			return nil, err
		}
		for _, pkg := range []string{goPackage, "fmt", "strings"} {
			if _, err := i.Eval(fmt.Sprintf("import %q", pkg)); err != nil {
				return nil, fmt.Errorf("import %s: %w", pkg, err)
			}
		}
		t.goi = i
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.ScriptTimeout)
	defer cancel()

	t.goOut.Reset()
	v, err := t.goi.EvalWithContext(ctx, input)
	lines := splitLines(t.goOut.String())
	if err != nil {
		return lines, err
	}
	if isPrintCall(input) {
		return lines, nil
	}
	if s, ok := printable(v); ok {
		lines = append(lines, s)
	}
	return lines, nil
}

// isPrintCall reports whether input is a single fmt print call, whose byte
// count result is not worth echoing.
func isPrintCall(input string) bool {
	expr, err := parser.ParseExpr(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != "fmt" {
		return false
	}
	switch sel.Sel.Name {
	case "Print", "Println", "Printf", "Fprint", "Fprintln", "Fprintf":
		return true
	}
	return false
}

// runGoScript runs a .go file in a fresh interpreter. Files with a package
// clause are run as programs; anything else is evaluated as statements with
// the minios package imported.
func (t *Terminal) runGoScript(ctx context.Context, _ string, src string) ([]string, error) {
	var out bytes.Buffer
	i, err := t.newInterpreter(&out)
	if err != nil {
		return nil, err
	}
	if !hasPackageClause(src) {
		for _, pkg := range []string{goPackage, "fmt"} {
			if _, err := i.Eval(fmt.Sprintf("import %q", pkg)); err != nil {
				return nil, err
			}
		}
	}
	_, err = i.EvalWithContext(ctx, src)
	return splitLines(out.String()), err
}

func hasPackageClause(src string) bool {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return strings.HasPrefix(line, "package ")
	}
	return false
}

func printable(v reflect.Value) (string, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	switch v.Kind() {
	case reflect.Func:
		return "", false
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan:
		if v.IsNil() {
			return "", false
		}
	}
	return fmt.Sprintf("%v", v.Interface()), true
}
