// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/ManuGH/minios/internal/notify"
)

// luaHookCount is the instruction interval at which the timeout is checked.
const luaHookCount = 1000

const maxLuaTableDepth = 8

// runLua executes src with a restricted library set: base, string, table
// and math, without dofile or loadfile.
func (t *Terminal) runLua(ctx context.Context, name, src string) ([]string, error) {
	var out []string
	l := lua.NewState()

	for _, lib := range []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
	} {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, unsafe := range []string{"dofile", "loadfile"} {
		l.PushNil()
		l.SetGlobal(unsafe)
	}

	l.Register("print", func(l *lua.State) int {
		n := l.Top()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			s, _ := lua.ToStringMeta(l, i)
			l.Pop(1)
			parts = append(parts, s)
		}
		out = append(out, strings.Join(parts, "\t"))
		return 0
	})
	l.Register("notify", func(l *lua.State) int {
		t.eng.Notifier().Notify("Script", lua.CheckString(l, 1), notify.SourceScript)
		return 0
	})
	l.Register("getvar", func(l *lua.State) int {
		v, ok := t.eng.Vars().Get(lua.CheckString(l, 1))
		if !ok {
			l.PushNil()
			return 1
		}
		pushLuaValue(l, v)
		return 1
	})
	l.Register("setvar", func(l *lua.State) int {
		key := lua.CheckString(l, 1)
		if err := t.eng.Vars().Set(key, luaValue(l, 2, 0)); err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		return 0
	})
	l.Register("read_file", func(l *lua.State) int {
		fs, err := t.fs()
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		content, err := fs.ReadFile(lua.CheckString(l, 1))
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		l.PushString(content)
		return 1
	})
	l.Register("write_file", func(l *lua.State) int {
		fs, err := t.fs()
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		if err := fs.CreateFile(lua.CheckString(l, 1), lua.CheckString(l, 2)); err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		return 0
	})

	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "script interrupted: %s", err.Error())
		}
	}, lua.MaskCount, luaHookCount)

	if err := lua.LoadBuffer(l, src, "@"+name, "t"); err != nil {
		return out, err
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return out, err
	}
	return out, nil
}

func pushLuaValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case float64:
		l.PushNumber(x)
	case int:
		l.PushInteger(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			l.PushNil()
			return
		}
		l.PushString(string(b))
	}
}

// luaValue converts the value at idx to its JSON-shaped Go form. Tables with
// keys 1..n become slices; other tables become maps.
func luaValue(l *lua.State, idx, depth int) any {
	switch l.TypeOf(idx) {
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		if depth >= maxLuaTableDepth {
			return nil
		}
		return luaTable(l, l.AbsIndex(idx), depth)
	default:
		return nil
	}
}

func luaTable(l *lua.State, idx, depth int) any {
	m := make(map[string]any)
	seq := true
	l.PushNil()
	for l.Next(idx) {
		var key string
		if l.TypeOf(-2) == lua.TypeNumber {
			n, _ := l.ToNumber(-2)
			key = strconv.FormatFloat(n, 'f', -1, 64)
		} else {
			// never call ToString on a non-string key mid-iteration
			if l.TypeOf(-2) != lua.TypeString {
				l.Pop(1)
				continue
			}
			key, _ = l.ToString(-2)
			seq = false
		}
		m[key] = luaValue(l, -1, depth+1)
		l.Pop(1)
	}
	if !seq || len(m) == 0 {
		return m
	}
	arr := make([]any, len(m))
	for i := range arr {
		v, ok := m[strconv.Itoa(i+1)]
		if !ok {
			return m
		}
		arr[i] = v
	}
	return arr
}
