package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"warden/pkg/message"
	"warden/pkg/plugin"
)

const (
	// Extension is the file suffix this runtime loads.
	Extension = ".lua"
	// DefaultLoadTimeout bounds the top-level chunk of a script.
	DefaultLoadTimeout = 5 * time.Second

	entryPoint = "handle"
)

// ErrClosed is returned when invoking a closed plugin.
var ErrClosed = errors.New("lua plugin is closed")

// Loader compiles .lua files into plugins.
type Loader struct {
	LoadTimeout time.Duration
	Log         *slog.Logger
}

func (Loader) Extension() string {
	return Extension
}

// Load runs the script's top-level chunk and requires a global handle function.
func (l Loader) Load(path string) (plugin.Plugin, error) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := l.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	name := plugin.NameFromPath(path)
	pluginLog := log.With("component", "plugin.lua", "plugin", name)
	L := newState(pluginLog)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(ctx)
	err := L.DoFile(path)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, &plugin.LoadError{Path: path, Err: err}
	}

	if fn := L.GetGlobal(entryPoint); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, &plugin.LoadError{Path: path, Err: plugin.ErrNoEntryPoint}
	}

	return &Plugin{name: name, path: path, L: L, log: pluginLog}, nil
}

// Plugin is one loaded Lua script with its own state.
type Plugin struct {
	name string
	path string
	log  *slog.Logger

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func (p *Plugin) Name() string {
	return p.name
}

// Path returns the script file the plugin was loaded from.
func (p *Plugin) Path() string {
	return p.path
}

// Handle calls handle(message, bot) with ctx bound to the state.
func (p *Plugin) Handle(ctx context.Context, msg *message.Message, inv plugin.Invocation) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	host := plugin.NewHost(ctx, msg, inv, p.log)
	L := p.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(L.GetGlobal(entryPoint))
	L.Push(toValue(L, host.Fields()))
	L.Push(botTable(L, host))
	if err := L.PCall(2, 0, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return err
	}
	return nil
}

// Close releases the Lua state once any running invocation returns.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.L.Close()
	return nil
}

// botTable exposes the host API. Functions accept both bot.reply(x) and bot:reply(x).
func botTable(L *lua.LState, host *plugin.Host) *lua.LTable {
	bot := L.NewTable()
	L.SetFuncs(bot, map[string]lua.LGFunction{
		"reply": func(L *lua.LState) int {
			raise(L, "reply", host.Reply(stringArg(L, 0)))
			return 0
		},
		"send": func(L *lua.LState) int {
			raise(L, "send", host.Send(stringArg(L, 0), stringArg(L, 1)))
			return 0
		},
		"delete": func(L *lua.LState) int {
			raise(L, "delete", host.Delete())
			return 0
		},
		"kick": func(L *lua.LState) int {
			raise(L, "kick", host.Kick(stringArg(L, 0)))
			return 0
		},
		"log": func(L *lua.LState) int {
			host.Log(stringArg(L, 0))
			return 0
		},
	})
	return bot
}

// stringArg reads the nth user argument, skipping a leading self table.
func stringArg(L *lua.LState, n int) string {
	base := 1
	if L.Get(1).Type() == lua.LTTable {
		base = 2
	}
	value := L.Get(base + n)
	if value == lua.LNil {
		return ""
	}
	return L.ToStringMeta(value).String()
}

func raise(L *lua.LState, op string, err error) {
	if err != nil {
		L.RaiseError("%s: %v", op, err)
	}
}
