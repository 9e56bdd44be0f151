package plugin

import (
	"context"
	"errors"
	"log/slog"

	"warden/pkg/message"
	"warden/pkg/transport"
)

// Host is the bot API exposed to scripts for one invocation.
type Host struct {
	ctx context.Context
	msg *message.Message
	inv Invocation
	log *slog.Logger
}

// NewHost binds the host API to one message.
func NewHost(ctx context.Context, msg *message.Message, inv Invocation, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{ctx: ctx, msg: msg, inv: inv, log: log}
}

// Fields is the message view passed to scripts.
func (h *Host) Fields() map[string]any {
	args := h.inv.Command.Args()
	values := make([]any, 0, len(args))
	for _, arg := range args {
		values = append(values, arg)
	}
	return map[string]any{
		"id":          h.msg.ID,
		"body":        h.msg.Body,
		"sender":      string(h.msg.Sender),
		"from":        string(h.msg.From),
		"is_group":    h.msg.IsGroup,
		"sender_name": h.msg.SenderName,
		"prefix":      h.inv.Command.Prefix,
		"command":     h.inv.Command.Name,
		"args":        values,
		"is_creator":  h.inv.Access.IsCreator,
	}
}

// Reply sends text to the originating chat, quoting the message.
func (h *Host) Reply(text string) error {
	if err := h.ready(); err != nil {
		return err
	}
	return h.inv.Transport.SendText(h.ctx, h.msg.From, text, h.msg.ID)
}

// Send sends text to an arbitrary chat.
func (h *Host) Send(chat, text string) error {
	if err := h.ready(); err != nil {
		return err
	}
	if chat == "" {
		return errors.New("send: chat is required")
	}
	return h.inv.Transport.SendText(h.ctx, transport.Identity(chat), text, "")
}

// Delete removes the message being handled.
func (h *Host) Delete() error {
	if err := h.ready(); err != nil {
		return err
	}
	return h.inv.Transport.DeleteMessage(h.ctx, h.msg.From, h.msg.ID)
}

// Kick removes user from the originating group. Only moderators may kick.
func (h *Host) Kick(user string) error {
	if err := h.ready(); err != nil {
		return err
	}
	if !h.msg.IsGroup {
		return errors.New("kick: not a group chat")
	}
	if !h.inv.Access.IsBotAdmin {
		return errors.New("kick: bot is not a group admin")
	}
	if !h.inv.Access.Moderator() {
		return errors.New("kick: sender is not allowed to moderate")
	}
	return h.inv.Transport.RemoveParticipant(h.ctx, h.msg.From, transport.Identity(user))
}

// Log writes text to the plugin's logger.
func (h *Host) Log(text string) {
	h.log.Info(text, "message_id", h.msg.ID, "chat_id", h.msg.From)
}

func (h *Host) ready() error {
	if h.inv.Transport == nil {
		return errors.New("transport handle is not available")
	}
	return h.ctx.Err()
}
