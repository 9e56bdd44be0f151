// Package js runs .js plugins on goja runtimes.
//
// A script exposes its entry point as module.exports = function (m, bot) {},
// module.exports.handle, or a global function handle. Async entry points are
// supported as long as they settle without host timers.
package js

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"warden/pkg/message"
	"warden/pkg/plugin"

	"github.com/dop251/goja"
)

const (
	// Extension is the file suffix this runtime loads.
	Extension = ".js"
	// DefaultLoadTimeout bounds the top-level evaluation of a script.
	DefaultLoadTimeout = 5 * time.Second
)

// ErrClosed is returned when invoking a closed plugin.
var ErrClosed = errors.New("js plugin is closed")

// Loader compiles .js files into plugins.
type Loader struct {
	LoadTimeout time.Duration
	Log         *slog.Logger
}

func (Loader) Extension() string {
	return Extension
}

func (l Loader) Load(path string) (plugin.Plugin, error) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := l.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &plugin.LoadError{Path: path, Err: err}
	}

	name := plugin.NameFromPath(path)
	pluginLog := log.With("component", "plugin.js", "plugin", name)
	vm := newRuntime(pluginLog)

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)

	stop := time.AfterFunc(timeout, func() {
		vm.Interrupt(fmt.Errorf("script evaluation exceeded %s", timeout))
	})
	_, err = vm.RunScript(path, string(src))
	stop.Stop()
	vm.ClearInterrupt()
	if err != nil {
		return nil, &plugin.LoadError{Path: path, Err: err}
	}

	entry, ok := entryPoint(vm, module)
	if !ok {
		return nil, &plugin.LoadError{Path: path, Err: plugin.ErrNoEntryPoint}
	}

	return &Plugin{name: name, path: path, vm: vm, entry: entry, log: pluginLog}, nil
}

// entryPoint resolves module.exports, module.exports.handle, then global handle.
func entryPoint(vm *goja.Runtime, module *goja.Object) (goja.Callable, bool) {
	exported := module.Get("exports")
	if fn, ok := goja.AssertFunction(exported); ok {
		return fn, true
	}
	if obj, ok := exported.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(obj.Get("handle")); ok {
			return fn, true
		}
	}
	return goja.AssertFunction(vm.Get("handle"))
}

func newRuntime(log *slog.Logger) *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	console := vm.NewObject()
	logFn := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			log.Log(context.Background(), level, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFn(slog.LevelInfo))
	_ = console.Set("info", logFn(slog.LevelInfo))
	_ = console.Set("warn", logFn(slog.LevelWarn))
	_ = console.Set("error", logFn(slog.LevelError))
	_ = vm.Set("console", console)

	return vm
}

// Plugin is one loaded script with its own runtime.
type Plugin struct {
	name  string
	path  string
	log   *slog.Logger
	entry goja.Callable

	mu     sync.Mutex
	vm     *goja.Runtime
	closed bool
}

func (p *Plugin) Name() string {
	return p.name
}

// Path returns the script file the plugin was loaded from.
func (p *Plugin) Path() string {
	return p.path
}

// Handle calls the entry point with the message view and bot object. ctx
// cancellation interrupts the running script.
func (p *Plugin) Handle(ctx context.Context, msg *message.Message, inv plugin.Invocation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	vm := p.vm
	host := plugin.NewHost(ctx, msg, inv, p.log)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-stopped
		vm.ClearInterrupt()
	}()

	result, err := p.entry(goja.Undefined(), vm.ToValue(host.Fields()), botObject(vm, host))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return fmt.Errorf("%w: script interrupted", cause)
			}
		}
		return err
	}
	return settle(result)
}

// settle turns a rejected promise into an error. Pending promises are treated
// as finished since there is no event loop to drive them.
func settle(result goja.Value) error {
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil
	}
	promise, ok := result.Export().(*goja.Promise)
	if !ok {
		return nil
	}
	if promise.State() == goja.PromiseStateRejected {
		return fmt.Errorf("promise rejected: %v", promise.Result())
	}
	return nil
}

// Close marks the plugin unusable once any running invocation returns.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func botObject(vm *goja.Runtime, host *plugin.Host) *goja.Object {
	bot := vm.NewObject()
	throw := func(op string, err error) {
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("%s: %w", op, err)))
		}
	}
	arg := func(call goja.FunctionCall, n int) string {
		value := call.Argument(n)
		if goja.IsUndefined(value) || goja.IsNull(value) {
			return ""
		}
		return value.String()
	}

	_ = bot.Set("reply", func(call goja.FunctionCall) goja.Value {
		throw("reply", host.Reply(arg(call, 0)))
		return goja.Undefined()
	})
	_ = bot.Set("send", func(call goja.FunctionCall) goja.Value {
		throw("send", host.Send(arg(call, 0), arg(call, 1)))
		return goja.Undefined()
	})
	_ = bot.Set("delete", func(goja.FunctionCall) goja.Value {
		throw("delete", host.Delete())
		return goja.Undefined()
	})
	_ = bot.Set("kick", func(call goja.FunctionCall) goja.Value {
		throw("kick", host.Kick(arg(call, 0)))
		return goja.Undefined()
	})
	_ = bot.Set("log", func(call goja.FunctionCall) goja.Value {
		host.Log(arg(call, 0))
		return goja.Undefined()
	})
	return bot
}
