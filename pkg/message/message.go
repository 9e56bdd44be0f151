// Package message holds the structured, transport-neutral view of one inbound
// chat message and the command parser applied to its body.
package message

import "time"

// Identity is a normalized user or chat identifier.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// Message is the structured form of one inbound chat event.
//
// Messages are created once per event by a transport normalizer and are
// treated as read-only by everything downstream.
type Message struct {
	ID         string
	Body       string
	Sender     Identity
	SenderName string
	From       Identity
	IsGroup    bool
	FromSelf   bool
	Timestamp  time.Time

	// Payload is the transport-native message. A nil payload marks the event
	// as not actionable.
	Payload any
}

// Actionable reports whether the message carries a payload worth dispatching.
func (m *Message) Actionable() bool {
	return m != nil && m.Payload != nil
}
