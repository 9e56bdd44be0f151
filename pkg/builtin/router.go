// Package builtin holds the fixed, compiled-in behaviors that run on every
// dispatched message before plugins: link-guard, the anti-left toggle and the
// sheng chat mode.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"warden/pkg/access"
	"warden/pkg/message"
	"warden/pkg/transport"
)

// Input is everything a behavior may inspect for one message.
type Input struct {
	Message   *message.Message
	Command   message.Command
	Transport transport.Handle
	Access    access.Context
}

// Behavior is one builtin step.
type Behavior interface {
	Name() string
	Run(ctx context.Context, in Input) error
}

// Result records the outcome of one behavior run.
type Result struct {
	Behavior string
	Duration time.Duration
	Err      error
}

// Router runs behaviors in their fixed order.
type Router struct {
	behaviors []Behavior
	log       *slog.Logger
}

// NewRouter builds a router over behaviors in the given order.
func NewRouter(log *slog.Logger, behaviors ...Behavior) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		behaviors: behaviors,
		log:       log.With("component", "builtin.router"),
	}
}

// Names lists behavior names in run order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.behaviors))
	for _, behavior := range r.behaviors {
		names = append(names, behavior.Name())
	}
	return names
}

// Run invokes every behavior once, in order. A failing behavior is logged and
// never stops the ones after it.
func (r *Router) Run(ctx context.Context, in Input) []Result {
	results := make([]Result, 0, len(r.behaviors))
	for _, behavior := range r.behaviors {
		startedAt := time.Now()
		err := runBehavior(ctx, behavior, in)
		result := Result{Behavior: behavior.Name(), Duration: time.Since(startedAt), Err: err}
		if err != nil {
			r.log.Error("Builtin behavior failed", "behavior", result.Behavior, "message_id", in.Message.ID, "error", err)
		}
		results = append(results, result)
	}

	return results
}

func runBehavior(ctx context.Context, behavior Behavior, in Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("behavior %s panicked: %v\n%s", behavior.Name(), r, debug.Stack())
		}
	}()

	return behavior.Run(ctx, in)
}

func reply(ctx context.Context, in Input, text string) error {
	return in.Transport.SendText(ctx, in.Message.From, text, in.Message.ID)
}
