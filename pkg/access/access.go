// Package access derives the per-message permission context from group
// metadata and the configured owner identity.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"warden/pkg/message"
	"warden/pkg/transport"
)

// Context is the permission view computed once per message.
type Context struct {
	GroupAdmins   []transport.Identity
	BotID         transport.Identity
	IsBotAdmin    bool
	IsSenderAdmin bool
	IsCreator     bool
}

// Privileged reports whether the sender bypasses private mode.
func (c Context) Privileged() bool {
	return c.IsCreator
}

// Allowed reports whether dispatch may proceed past the public-mode gate.
func (c Context) Allowed(publicMode bool) bool {
	return publicMode || c.Privileged()
}

// Moderator reports whether the sender may run group moderation toggles.
func (c Context) Moderator() bool {
	return c.IsCreator || c.IsSenderAdmin
}

// GroupAdmins returns participants holding admin or superadmin, in order.
func GroupAdmins(participants []transport.Participant) []transport.Identity {
	admins := make([]transport.Identity, 0, len(participants))
	for _, participant := range participants {
		if participant.Role == transport.RoleAdmin || participant.Role == transport.RoleSuperAdmin {
			admins = append(admins, participant.ID)
		}
	}

	return admins
}

// OwnerIdentity decodes the configured owner through the transport's identity rules.
func OwnerIdentity(raw string, handle transport.Handle) transport.Identity {
	if handle == nil {
		return transport.DecodeDeviceSuffix(raw)
	}

	return handle.DecodeIdentity(raw)
}

// Evaluate computes the permission context for msg.
//
// A failed participant lookup for a group message is returned as a
// *transport.MetadataError so the caller can abort the cycle.
func Evaluate(ctx context.Context, msg *message.Message, handle transport.Handle, owner transport.Identity) (Context, error) {
	if msg == nil {
		return Context{}, errors.New("message is required")
	}
	if handle == nil {
		return Context{}, errors.New("transport handle is required")
	}

	self, err := handle.OwnIdentity(ctx)
	if err != nil {
		return Context{}, fmt.Errorf("resolve own identity: %w", err)
	}
	botID := handle.DecodeIdentity(string(self))

	result := Context{
		GroupAdmins: []transport.Identity{},
		BotID:       botID,
		IsCreator:   isCreator(msg.Sender, owner, botID),
	}

	if !msg.IsGroup {
		return result, nil
	}

	participants, err := handle.GroupParticipants(ctx, msg.From)
	if err != nil {
		var metaErr *transport.MetadataError
		if errors.As(err, &metaErr) {
			return Context{}, err
		}
		return Context{}, &transport.MetadataError{Group: msg.From, Err: err}
	}

	result.GroupAdmins = GroupAdmins(participants)
	result.IsBotAdmin = slices.Contains(result.GroupAdmins, botID)
	result.IsSenderAdmin = slices.Contains(result.GroupAdmins, msg.Sender)

	return result, nil
}

func isCreator(sender, owner, bot transport.Identity) bool {
	if sender == "" {
		return false
	}

	return sender == owner || sender == bot
}
