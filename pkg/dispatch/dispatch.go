// Package dispatch is the per-event entry point: it filters raw transport
// events, normalizes them, evaluates access and runs builtins then plugins.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"warden/pkg/access"
	"warden/pkg/builtin"
	"warden/pkg/bus"
	"warden/pkg/message"
	"warden/pkg/plugin"
	"warden/pkg/transport"
)

// DefaultMetadataTimeout bounds identity and group metadata lookups.
const DefaultMetadataTimeout = 10 * time.Second

// Outcome is where one dispatch cycle ended.
type Outcome int

const (
	OutcomeFiltered Outcome = iota
	OutcomeNoPayload
	OutcomeDenied
	OutcomeMetadataFailed
	OutcomeFailed
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeNoPayload:
		return "no_payload"
	case OutcomeDenied:
		return "denied"
	case OutcomeMetadataFailed:
		return "metadata_failed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCompleted:
		return "completed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// BuiltinRunner runs the fixed builtin behaviors.
type BuiltinRunner interface {
	Run(ctx context.Context, in builtin.Input) []builtin.Result
}

// PluginRunner runs the loaded plugins.
type PluginRunner interface {
	Dispatch(ctx context.Context, msg *message.Message, inv plugin.Invocation) []plugin.Result
}

// Options configures a Handler.
type Options struct {
	Transport       transport.Handle
	Normalizer      transport.Normalizer
	Owner           string
	Builtins        BuiltinRunner
	Plugins         PluginRunner
	Bus             *bus.MessageBus
	Log             *slog.Logger
	MetadataTimeout time.Duration
}

// Handler runs dispatch cycles for one transport session.
type Handler struct {
	transport       transport.Handle
	normalizer      transport.Normalizer
	owner           transport.Identity
	builtins        BuiltinRunner
	plugins         PluginRunner
	bus             *bus.MessageBus
	log             *slog.Logger
	metadataTimeout time.Duration
}

func New(opts Options) (*Handler, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport handle is required")
	}
	if opts.Normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.MetadataTimeout
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}

	return &Handler{
		transport:       opts.Transport,
		normalizer:      opts.Normalizer,
		owner:           access.OwnerIdentity(opts.Owner, opts.Transport),
		builtins:        opts.Builtins,
		plugins:         opts.Plugins,
		bus:             opts.Bus,
		log:             log.With("component", "dispatch.handler"),
		metadataTimeout: timeout,
	}, nil
}

// Handle runs one cycle. It never panics and never returns an error: every
// failure ends the cycle with a logged outcome.
func (h *Handler) Handle(ctx context.Context, event transport.Event) (outcome Outcome) {
	startedAt := time.Now()
	var msg *message.Message

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("dispatch panicked: %v", r)
			h.log.Error("Dispatch cycle panicked", "event_type", event.Type, "error", err, "stack", string(debug.Stack()))
			h.publish(ctx, bus.EventDispatchFailed, event, msg, err, nil)
			outcome = OutcomeFailed
		}
	}()

	if event.Type != transport.EventNotify {
		h.log.Debug("Ignoring non-notify event", "event_type", event.Type)
		h.publish(ctx, bus.EventDispatchFiltered, event, nil, nil, map[string]string{"reason": "event_type"})
		return OutcomeFiltered
	}

	msg, err := h.normalizer.Normalize(ctx, event)
	if err != nil {
		var normErr *transport.NormalizationError
		if !errors.As(err, &normErr) {
			err = &transport.NormalizationError{EventType: event.Type, Err: err}
		}
		h.log.Error("Failed to normalize event", "event_type", event.Type, "error", err)
		h.publish(ctx, bus.EventDispatchFailed, event, nil, err, nil)
		return OutcomeFailed
	}
	if !msg.Actionable() {
		h.log.Debug("Ignoring event without payload", "event_type", event.Type)
		h.publish(ctx, bus.EventDispatchFiltered, event, msg, nil, map[string]string{"reason": "no_payload"})
		return OutcomeNoPayload
	}

	h.publish(ctx, bus.EventDispatchReceived, event, msg, nil, nil)

	lookupCtx, cancel := context.WithTimeout(ctx, h.metadataTimeout)
	perms, err := access.Evaluate(lookupCtx, msg, h.transport, h.owner)
	cancel()
	if err != nil {
		var metaErr *transport.MetadataError
		if errors.As(err, &metaErr) {
			h.log.Error("Group metadata lookup failed", "chat_id", msg.From, "message_id", msg.ID, "error", err)
			h.publish(ctx, bus.EventDispatchFailed, event, msg, err, map[string]string{"stage": "metadata"})
			return OutcomeMetadataFailed
		}
		h.log.Error("Access evaluation failed", "chat_id", msg.From, "message_id", msg.ID, "error", err)
		h.publish(ctx, bus.EventDispatchFailed, event, msg, err, map[string]string{"stage": "access"})
		return OutcomeFailed
	}

	if !perms.Allowed(h.transport.PublicMode()) {
		h.log.Debug("Private mode, ignoring unprivileged sender", "chat_id", msg.From, "sender_id", msg.Sender)
		h.publish(ctx, bus.EventDispatchDenied, event, msg, nil, nil)
		return OutcomeDenied
	}

	command := message.ParseCommand(msg.Body)

	if h.builtins != nil {
		results := h.builtins.Run(ctx, builtin.Input{
			Message:   msg,
			Command:   command,
			Transport: h.transport,
			Access:    perms,
		})
		for _, result := range results {
			if result.Err != nil {
				h.publish(ctx, bus.EventBehaviorFailed, event, msg, result.Err, map[string]string{"behavior": result.Behavior})
			}
		}
	}

	if h.plugins != nil {
		results := h.plugins.Dispatch(ctx, msg, plugin.Invocation{
			Transport: h.transport,
			Command:   command,
			Access:    perms,
		})
		for _, result := range results {
			if result.Err != nil {
				h.publish(ctx, bus.EventPluginFailed, event, msg, result.Err, map[string]string{"plugin": result.Plugin})
			}
		}
	}

	h.log.Debug("Dispatch cycle completed", "chat_id", msg.From, "message_id", msg.ID, "command", command.Name, "duration", time.Since(startedAt))
	h.publish(ctx, bus.EventDispatchCompleted, event, msg, nil, map[string]string{"command": command.Name})
	return OutcomeCompleted
}

func (h *Handler) publish(ctx context.Context, eventType bus.EventType, event transport.Event, msg *message.Message, err error, payload map[string]string) {
	if h.bus == nil {
		return
	}
	out := bus.Event{
		Type:    eventType,
		Channel: event.Channel,
		Payload: payload,
	}
	if msg != nil {
		out.ChatID = string(msg.From)
		out.SenderID = string(msg.Sender)
		out.MessageID = msg.ID
	}
	if err != nil {
		out.Error = err.Error()
	}
	h.bus.PublishEvent(ctx, out)
}

// GroupUpdateHandler receives membership-change payloads as the transport emits them.
type GroupUpdateHandler func(ctx context.Context, payload any)

// ListenGroupUpdates subscribes fn once to the transport's membership-change
// stream. Payloads are forwarded unmodified.
func ListenGroupUpdates(handle transport.Handle, fn GroupUpdateHandler) (unsubscribe func()) {
	if handle == nil || fn == nil {
		return func() {}
	}
	return handle.Subscribe(transport.EventGroupParticipantsUpdate, transport.Listener(fn))
}
