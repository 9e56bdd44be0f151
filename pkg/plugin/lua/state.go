// Package lua runs .lua plugins on sandboxed gopher-lua states.
package lua

import (
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// unsafeGlobals are removed from every state: they load code from disk or strings.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// newState creates a Lua state with only the base, table, string and math
// libraries. print is routed to log.
//
// gopher-lua states are not goroutine-safe; callers serialize access.
func newState(log *slog.Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	// io, os, debug, package and channel stay closed.

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		log.Info(strings.Join(parts, "\t"))
		return 0
	}))

	return L
}

// toValue converts host values into Lua values.
func toValue(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for _, item := range v {
			tbl.Append(toValue(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for key, item := range v {
			tbl.RawSetString(key, toValue(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
