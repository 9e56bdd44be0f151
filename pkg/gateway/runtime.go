package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"warden/pkg/builtin"
	"warden/pkg/bus"
	"warden/pkg/channel"
	"warden/pkg/config"
	"warden/pkg/dispatch"
	"warden/pkg/message"
	"warden/pkg/plugin"
	pluginjs "warden/pkg/plugin/js"
	pluginlua "warden/pkg/plugin/lua"
	"warden/pkg/provider"
	"warden/pkg/settings"
	"warden/pkg/transport"
)

// Runtime owns the pieces every channel session shares: the settings store,
// builtin behaviors, the plugin registry and the lifecycle bus.
type Runtime struct {
	cfg *config.Config
	log *slog.Logger

	Bus       *bus.MessageBus
	Settings  *settings.Store
	Responder builtin.Responder
	Builtins  *builtin.Set
	Registry  *plugin.Registry
	Plugins   *plugin.Dispatcher

	mu       sync.Mutex
	sessions map[string]func()
}

// NewRuntime opens settings, resolves the sheng responder, builds the builtin
// set and performs the first plugin directory load. An unreadable plugin
// directory is logged, not fatal.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return nil, err
	}

	responder, err := provider.New(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initialize provider: %w", err)
	}

	set, err := builtin.New(cfg.Builtins, store, responder, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initialize builtins: %w", err)
	}

	registry := plugin.NewRegistry(cfg.Plugins.Dir, log,
		pluginlua.Loader{Log: log},
		pluginjs.Loader{Log: log},
	)
	registry.Register(listPlugins(registry))
	registry.Disable(cfg.Plugins.Disabled...)
	if _, err := registry.Load(ctx); err != nil {
		log.Warn("Plugin directory unavailable, continuing with builtins only", "dir", cfg.Plugins.Dir, "error", err)
	}

	timeout := time.Duration(cfg.Plugins.TimeoutSeconds) * time.Second

	return &Runtime{
		cfg:       cfg,
		log:       log.With("component", "gateway.runtime"),
		Bus:       bus.NewMessageBus(),
		Settings:  store,
		Responder: responder,
		Builtins:  set,
		Registry:  registry,
		Plugins:   plugin.NewDispatcher(registry, timeout, log),
		sessions:  make(map[string]func()),
	}, nil
}

// Attach builds the dispatch handler for one channel session and registers
// the anti-left bridge on its membership-change stream. Attaching the same
// channel name twice replaces the earlier subscription.
func (r *Runtime) Attach(adapter channel.Adapter) (channel.Handler, error) {
	if adapter == nil {
		return nil, errors.New("channel adapter is required")
	}

	handler, err := dispatch.New(dispatch.Options{
		Transport:       adapter,
		Normalizer:      adapter,
		Owner:           r.cfg.Bot.OwnerID,
		Builtins:        r.Builtins.Router,
		Plugins:         r.Plugins,
		Bus:             r.Bus,
		Log:             r.log.With("channel", adapter.Name()),
		MetadataTimeout: time.Duration(r.cfg.Bot.MetadataTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("attach %s channel: %w", adapter.Name(), err)
	}

	unsubscribe := dispatch.ListenGroupUpdates(adapter, r.groupUpdates(adapter))

	r.mu.Lock()
	if previous, ok := r.sessions[adapter.Name()]; ok {
		previous()
	}
	r.sessions[adapter.Name()] = unsubscribe
	r.mu.Unlock()

	return func(ctx context.Context, event transport.Event) {
		handler.Handle(ctx, event)
	}, nil
}

// Detach drops the group-update subscription for name.
func (r *Runtime) Detach(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unsubscribe, ok := r.sessions[name]; ok {
		unsubscribe()
		delete(r.sessions, name)
	}
}

func (r *Runtime) groupUpdates(handle transport.Handle) dispatch.GroupUpdateHandler {
	log := r.log.With("component", "gateway.group_updates")

	return func(ctx context.Context, payload any) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("Group update handler panicked", "panic", fmt.Sprint(recovered))
			}
		}()

		var update transport.GroupUpdate
		switch value := payload.(type) {
		case transport.GroupUpdate:
			update = value
		case *transport.GroupUpdate:
			if value == nil {
				return
			}
			update = *value
		default:
			log.Warn("Ignoring unknown group update payload", "type", fmt.Sprintf("%T", payload))
			return
		}

		if err := r.Builtins.AntiLeft.HandleGroupUpdate(ctx, handle, update); err != nil {
			log.Error("Anti-left notice failed", "chat_id", update.Chat, "error", err)
		}
	}
}

// listPlugins answers !plugins with the directory plugins of the last load.
func listPlugins(registry *plugin.Registry) plugin.Plugin {
	return plugin.Func{
		ID: "plugins",
		Fn: func(ctx context.Context, msg *message.Message, inv plugin.Invocation) error {
			if !inv.Command.Is("plugins") {
				return nil
			}

			loaded := registry.LastReport().Loaded
			text := "No directory plugins loaded."
			if len(loaded) > 0 {
				text = "Plugins: " + strings.Join(loaded, ", ")
			}
			return inv.Transport.SendText(ctx, msg.From, text, msg.ID)
		},
	}
}

// Reload re-reads the plugin directory and publishes the outcome.
func (r *Runtime) Reload(ctx context.Context) (plugin.Report, error) {
	report, err := r.Registry.Reload(ctx)

	r.Bus.PublishEvent(ctx, bus.Event{
		Type: bus.EventPluginsReloaded,
		Payload: map[string]string{
			"dir":     report.Dir,
			"loaded":  strconv.Itoa(len(report.Loaded)),
			"skipped": strconv.Itoa(len(report.Skipped)),
			"errors":  strconv.Itoa(len(report.Errors)),
		},
		Error: errorString(err),
	})

	return report, err
}

// Watch reloads plugins on directory changes until ctx ends. It returns
// immediately when plugins.watch is off.
func (r *Runtime) Watch(ctx context.Context) error {
	if !r.cfg.Plugins.Watch {
		return nil
	}

	watcher := plugin.NewWatcher(r.Registry.Dir(), r.Registry.Extensions(), plugin.DefaultDebounce, func(ctx context.Context) {
		_, _ = r.Reload(ctx)
	}, r.log)

	return watcher.Run(ctx)
}

// Close releases subscriptions, plugin runtimes, the bus and the settings store.
func (r *Runtime) Close() error {
	r.mu.Lock()
	for name, unsubscribe := range r.sessions {
		unsubscribe()
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	var errs []error
	if err := r.Registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close plugins: %w", err))
	}
	r.Bus.Close()
	if err := r.Settings.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close settings: %w", err))
	}

	return errors.Join(errs...)
}
