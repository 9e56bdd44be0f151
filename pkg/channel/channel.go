package channel

import (
	"context"

	"warden/pkg/transport"
)

// Handler processes one raw inbound event from a channel.
type Handler func(context.Context, transport.Event)

// Adapter bridges one external transport (for example Telegram) into the
// dispatch pipeline. The adapter is also the session handle builtins and
// plugins act through, and the normalizer for its own raw events.
type Adapter interface {
	transport.Handle
	transport.Normalizer
	Name() string
	Run(context.Context, Handler) error
}
