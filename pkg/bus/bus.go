package bus

import (
	"context"
	"slices"
	"sync"
)

const defaultBufferSize = 100

// Listener receives one emitted payload for a topic.
type Listener func(ctx context.Context, payload any)

// MessageBus carries topic subscriptions for transports and the dispatch
// lifecycle event stream.
type MessageBus struct {
	listeners      map[string]map[uint64]Listener
	nextListenerID uint64

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		listeners:        make(map[string]map[uint64]Listener),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// Subscribe registers listener for topic and returns an idempotent unsubscribe.
func (mb *MessageBus) Subscribe(topic string, listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		return func() {}
	default:
	}

	id := mb.nextListenerID
	mb.nextListenerID++
	if mb.listeners[topic] == nil {
		mb.listeners[topic] = make(map[uint64]Listener)
	}
	mb.listeners[topic][id] = listener
	mb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mb.mu.Lock()
			delete(mb.listeners[topic], id)
			mb.mu.Unlock()
		})
	}
}

// Emit calls every listener of topic in subscription order and returns how
// many were called. Listeners run on the caller's goroutine.
func (mb *MessageBus) Emit(ctx context.Context, topic string, payload any) int {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return 0
	case <-mb.done:
		return 0
	default:
	}

	mb.mu.RLock()
	ids := make([]uint64, 0, len(mb.listeners[topic]))
	for id := range mb.listeners[topic] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, mb.listeners[topic][id])
	}
	mb.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, payload)
	}

	return len(listeners)
}

// ListenerCount returns the number of live listeners for topic.
func (mb *MessageBus) ListenerCount(topic string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.listeners[topic])
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.listeners = make(map[string]map[uint64]Listener)
		mb.mu.Unlock()
	})
}

