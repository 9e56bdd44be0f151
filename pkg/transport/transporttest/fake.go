// Package transporttest provides an in-memory transport.Handle for tests.
package transporttest

import (
	"context"
	"strings"
	"sync"

	"warden/pkg/transport"
)

// Sent is one recorded SendText call.
type Sent struct {
	Chat    transport.Identity
	Text    string
	ReplyTo string
}

// Removed is one recorded RemoveParticipant call.
type Removed struct {
	Chat transport.Identity
	User transport.Identity
}

// Deleted is one recorded DeleteMessage call.
type Deleted struct {
	Chat      transport.Identity
	MessageID string
}

// Handle records every side effect and serves canned metadata.
type Handle struct {
	Self         transport.Identity
	Public       bool
	Participants map[transport.Identity][]transport.Participant
	MetadataErr  error
	SelfErr      error

	mu        sync.Mutex
	sent      []Sent
	deleted   []Deleted
	removed   []Removed
	lookups   int
	listeners map[string][]transport.Listener
}

// New returns a fake handle for the bot identity self.
func New(self transport.Identity) *Handle {
	return &Handle{
		Self:         self,
		Participants: make(map[transport.Identity][]transport.Participant),
		listeners:    make(map[string][]transport.Listener),
	}
}

func (h *Handle) OwnIdentity(context.Context) (transport.Identity, error) {
	if h.SelfErr != nil {
		return "", h.SelfErr
	}

	return h.Self, nil
}

func (h *Handle) GroupParticipants(_ context.Context, group transport.Identity) ([]transport.Participant, error) {
	h.mu.Lock()
	h.lookups++
	h.mu.Unlock()

	if h.MetadataErr != nil {
		return nil, h.MetadataErr
	}

	return h.Participants[group], nil
}

func (h *Handle) DecodeIdentity(raw string) transport.Identity {
	return transport.DecodeDeviceSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "+"))
}

func (h *Handle) Subscribe(event string, listener transport.Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[string][]transport.Listener)
	}
	h.listeners[event] = append(h.listeners[event], listener)
	idx := len(h.listeners[event]) - 1

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.listeners[event][idx] = nil
	}
}

func (h *Handle) PublicMode() bool {
	return h.Public
}

func (h *Handle) SendText(_ context.Context, chat transport.Identity, text string, replyTo string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, Sent{Chat: chat, Text: text, ReplyTo: replyTo})
	return nil
}

func (h *Handle) DeleteMessage(_ context.Context, chat transport.Identity, messageID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, Deleted{Chat: chat, MessageID: messageID})
	return nil
}

func (h *Handle) RemoveParticipant(_ context.Context, chat transport.Identity, user transport.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, Removed{Chat: chat, User: user})
	return nil
}

// Emit delivers payload to every live listener of event.
func (h *Handle) Emit(ctx context.Context, event string, payload any) {
	h.mu.Lock()
	listeners := append([]transport.Listener(nil), h.listeners[event]...)
	h.mu.Unlock()

	for _, listener := range listeners {
		if listener != nil {
			listener(ctx, payload)
		}
	}
}

// Listeners returns the number of live listeners for event.
func (h *Handle) Listeners(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, listener := range h.listeners[event] {
		if listener != nil {
			count++
		}
	}
	return count
}

// Sent returns a copy of recorded SendText calls.
func (h *Handle) Sent() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Sent(nil), h.sent...)
}

// Deleted returns a copy of recorded DeleteMessage calls.
func (h *Handle) Deleted() []Deleted {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Deleted(nil), h.deleted...)
}

// Removed returns a copy of recorded RemoveParticipant calls.
func (h *Handle) Removed() []Removed {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Removed(nil), h.removed...)
}

// Lookups returns how many times group metadata was requested.
func (h *Handle) Lookups() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookups
}

// SideEffects returns the total number of recorded outbound actions.
func (h *Handle) SideEffects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent) + len(h.deleted) + len(h.removed)
}
