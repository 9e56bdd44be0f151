package bus

import (
	"context"
	"log/slog"
	"time"
)

// ObserveEvents logs lifecycle events until ctx ends or the bus closes.
func ObserveEvents(ctx context.Context, messageBus *MessageBus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")

	events, unsubscribe := messageBus.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event Event) {
	attrs := []any{
		"event_type", event.Type,
		"channel", event.Channel,
		"chat_id", event.ChatID,
		"sender_id", event.SenderID,
		"message_id", event.MessageID,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case EventDispatchFailed, EventPluginFailed, EventBehaviorFailed:
		log.Error("Dispatch event", append(attrs, "error", event.Error)...)
	case EventDispatchCompleted, EventPluginsReloaded:
		log.Info("Dispatch event", attrs...)
	default:
		log.Debug("Dispatch event", attrs...)
	}
}
