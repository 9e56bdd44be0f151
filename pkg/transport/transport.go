// Package transport defines the narrow capability surface the dispatch core
// consumes from a messaging network session.
package transport

import (
	"context"
	"strings"
	"time"

	"warden/pkg/message"
)

// EventNotify is the only inbound event type that carries actionable messages.
const EventNotify = "notify"

// EventGroupParticipantsUpdate is the subscription name for membership changes.
const EventGroupParticipantsUpdate = "group-participants.update"

// Identity is a normalized user or chat identifier.
type Identity = message.Identity

// Role is a participant's privilege level inside a group.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Participant is one member entry from group metadata.
type Participant struct {
	ID   Identity `json:"id"`
	Role Role     `json:"role"`
}

// Event is one raw inbound update emitted by a transport.
type Event struct {
	Type       string    `json:"type"`
	Channel    string    `json:"channel"`
	Raw        any       `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// GroupUpdate actions.
const (
	ActionAdd     = "add"
	ActionRemove  = "remove"
	ActionPromote = "promote"
	ActionDemote  = "demote"
)

// GroupUpdate describes participant additions or removals in one group.
type GroupUpdate struct {
	Chat         Identity   `json:"chat"`
	Participants []Identity `json:"participants"`
	Names        []string   `json:"names,omitempty"`
	Action       string     `json:"action"`
	Actor        Identity   `json:"actor,omitempty"`
}

// Listener receives payloads for one subscribed event name.
type Listener func(ctx context.Context, payload any)

// Handle is the session capability passed to the core, builtins and plugins.
type Handle interface {
	OwnIdentity(ctx context.Context) (Identity, error)
	GroupParticipants(ctx context.Context, group Identity) ([]Participant, error)
	DecodeIdentity(raw string) Identity
	Subscribe(event string, listener Listener) (unsubscribe func())
	PublicMode() bool

	SendText(ctx context.Context, chat Identity, text string, replyTo string) error
	DeleteMessage(ctx context.Context, chat Identity, messageID string) error
	RemoveParticipant(ctx context.Context, chat Identity, user Identity) error
}

// Normalizer turns one raw transport event into a structured message.
type Normalizer interface {
	Normalize(ctx context.Context, event Event) (*message.Message, error)
}

// NormalizerFunc adapts a plain function to Normalizer.
type NormalizerFunc func(ctx context.Context, event Event) (*message.Message, error)

func (f NormalizerFunc) Normalize(ctx context.Context, event Event) (*message.Message, error) {
	return f(ctx, event)
}

// DecodeDeviceSuffix strips a ":<device>" suffix from the user part of a raw
// identity, so "123:7@host" and "123@host" resolve to the same identity.
func DecodeDeviceSuffix(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	user, host, hasHost := strings.Cut(raw, "@")
	if idx := strings.Index(user, ":"); idx >= 0 {
		user = user[:idx]
	}
	if !hasHost {
		return Identity(user)
	}

	return Identity(user + "@" + host)
}
