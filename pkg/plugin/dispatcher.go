package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"warden/pkg/message"
)

// DefaultTimeout bounds a single plugin invocation.
const DefaultTimeout = 10 * time.Second

// Source supplies the ordered plugins for one dispatch.
type Source interface {
	Snapshot() []Plugin
}

// Result records the outcome of one plugin invocation.
type Result struct {
	Plugin   string
	Duration time.Duration
	Err      error
}

// Dispatcher runs every plugin of a Source for one message.
type Dispatcher struct {
	source  Source
	timeout time.Duration
	log     *slog.Logger
}

func NewDispatcher(source Source, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		source:  source,
		timeout: timeout,
		log:     log.With("component", "plugin.dispatcher"),
	}
}

// Dispatch invokes the plugins sequentially in registry order. A failing
// plugin is logged and recorded as an *InvocationError; the next one still
// runs. Dispatch stops early only when ctx itself ends.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message, inv Invocation) []Result {
	if d == nil || d.source == nil {
		return nil
	}
	plugins := d.source.Snapshot()
	results := make([]Result, 0, len(plugins))
	for _, p := range plugins {
		if ctx.Err() != nil {
			break
		}
		startedAt := time.Now()
		err := d.invoke(ctx, p, msg, inv)
		result := Result{Plugin: p.Name(), Duration: time.Since(startedAt)}
		if err != nil {
			result.Err = &InvocationError{Plugin: p.Name(), Err: err}
			d.log.Error("Plugin failed", "plugin", p.Name(), "message_id", msg.ID, "duration", result.Duration, "error", err)
		}
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) invoke(parent context.Context, p Plugin, msg *message.Message, inv Invocation) error {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		done <- p.Handle(ctx, msg, inv)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return fmt.Errorf("%w after %s: %v", ErrTimeout, d.timeout, err)
		}
		return err
	case <-ctx.Done():
		if parent.Err() != nil {
			return parent.Err()
		}
		return fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
	}
}
