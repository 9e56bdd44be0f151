package plugin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"warden/pkg/message"
)

type staticSource []Plugin

func (s staticSource) Snapshot() []Plugin { return s }

func recorder(calls *[]string, mu *sync.Mutex, name string, fn func(ctx context.Context) error) Plugin {
	return Func{ID: name, Fn: func(ctx context.Context, _ *message.Message, _ Invocation) error {
		mu.Lock()
		*calls = append(*calls, name)
		mu.Unlock()
		if fn == nil {
			return nil
		}
		return fn(ctx)
	}}
}

func TestDispatchIsolatesFailuresAndKeepsOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	source := staticSource{
		recorder(&calls, &mu, "first", nil),
		recorder(&calls, &mu, "failing", func(context.Context) error { return errors.New("boom") }),
		recorder(&calls, &mu, "panicking", func(context.Context) error { panic("kaboom") }),
		recorder(&calls, &mu, "last", nil),
	}

	results := NewDispatcher(source, time.Second, nil).Dispatch(context.Background(), &message.Message{ID: "1"}, Invocation{})

	if strings.Join(calls, ",") != "first,failing,panicking,last" {
		t.Fatalf("calls = %v", calls)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	for idx, wantErr := range []bool{false, true, true, false} {
		if (results[idx].Err != nil) != wantErr {
			t.Fatalf("results[%d].Err = %v, want error %v", idx, results[idx].Err, wantErr)
		}
	}
	var invErr *InvocationError
	if !errors.As(results[2].Err, &invErr) || invErr.Plugin != "panicking" {
		t.Fatalf("results[2].Err = %v, want InvocationError for panicking", results[2].Err)
	}
}

func TestDispatchTimesOutSlowPlugin(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	release := make(chan struct{})
	defer close(release)
	source := staticSource{
		recorder(&calls, &mu, "stuck", func(context.Context) error {
			<-release
			return nil
		}),
		recorder(&calls, &mu, "after", nil),
	}

	results := NewDispatcher(source, 30*time.Millisecond, nil).Dispatch(context.Background(), &message.Message{ID: "1"}, Invocation{})

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !errors.Is(results[0].Err, ErrTimeout) {
		t.Fatalf("results[0].Err = %v, want ErrTimeout", results[0].Err)
	}
	if results[1].Err != nil {
		t.Fatalf("results[1].Err = %v, want nil", results[1].Err)
	}
}

func TestDispatchStopsWhenContextEnds(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	source := staticSource{
		recorder(&calls, &mu, "cancels", func(context.Context) error {
			cancel()
			return nil
		}),
		recorder(&calls, &mu, "skipped", nil),
	}

	results := NewDispatcher(source, time.Second, nil).Dispatch(ctx, &message.Message{ID: "1"}, Invocation{})
	if len(results) != 1 || len(calls) != 1 {
		t.Fatalf("results = %v calls = %v, want only the first plugin", results, calls)
	}
}

func TestDispatchWithoutSource(t *testing.T) {
	var d *Dispatcher
	if got := d.Dispatch(context.Background(), &message.Message{}, Invocation{}); got != nil {
		t.Fatalf("Dispatch() = %v, want nil", got)
	}
}
