package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"warden/pkg/transport"
)

const (
	antiLeftNamespace = "antileft"
	antiLeftOnPhrase  = "antileft on"
	antiLeftOffPhrase = "antileft off"
)

// AntiLeft owns the per-group membership guard: the on/off toggle phrase and
// the reaction to participants leaving.
type AntiLeft struct {
	settings Settings
	log      *slog.Logger
}

func NewAntiLeft(settings Settings, log *slog.Logger) *AntiLeft {
	if log == nil {
		log = slog.Default()
	}

	return &AntiLeft{
		settings: settings,
		log:      log.With("component", "builtin.antileft"),
	}
}

func (a *AntiLeft) Name() string {
	return "antileft"
}

// TogglePhrase reports whether body is one of the toggle phrases and which state it asks for.
func TogglePhrase(body string) (enable bool, ok bool) {
	switch {
	case strings.EqualFold(body, antiLeftOnPhrase):
		return true, true
	case strings.EqualFold(body, antiLeftOffPhrase):
		return false, true
	default:
		return false, false
	}
}

// Run flips the group's anti-left setting when the body is a toggle phrase.
func (a *AntiLeft) Run(ctx context.Context, in Input) error {
	enable, ok := TogglePhrase(in.Message.Body)
	if !ok {
		return nil
	}

	if !in.Message.IsGroup {
		return reply(ctx, in, "Anti-left only works in groups.")
	}
	if !in.Access.Moderator() {
		return reply(ctx, in, "Only group admins or the owner can change anti-left.")
	}

	if err := a.settings.SetBool(ctx, toggleKey(antiLeftNamespace, in.Message.From), enable); err != nil {
		return fmt.Errorf("persist antileft setting: %w", err)
	}
	a.log.Info("Anti-left toggled", "chat_id", in.Message.From, "sender_id", in.Message.Sender, "enabled", enable)

	return reply(ctx, in, "Anti-left is now "+onOff(enable)+".")
}

// Enabled reports the persisted anti-left state for chat.
func (a *AntiLeft) Enabled(ctx context.Context, chat transport.Identity) (bool, error) {
	return a.settings.Bool(ctx, toggleKey(antiLeftNamespace, chat))
}

// HandleGroupUpdate reacts to participants leaving a guarded group.
func (a *AntiLeft) HandleGroupUpdate(ctx context.Context, handle transport.Handle, update transport.GroupUpdate) error {
	if update.Action != transport.ActionRemove || len(update.Participants) == 0 {
		return nil
	}

	enabled, err := a.Enabled(ctx, update.Chat)
	if err != nil {
		return fmt.Errorf("read antileft setting: %w", err)
	}
	if !enabled {
		return nil
	}

	var errs []error
	for idx, participant := range update.Participants {
		if update.Actor != "" && update.Actor != participant {
			// Removed by someone else, not a voluntary leave.
			continue
		}

		name := string(participant)
		if idx < len(update.Names) && update.Names[idx] != "" {
			name = update.Names[idx]
		}

		a.log.Info("Participant left guarded group", "chat_id", update.Chat, "participant", participant)
		notice := fmt.Sprintf("%s left the group while anti-left is on.", name)
		if err := handle.SendText(ctx, update.Chat, notice, ""); err != nil {
			errs = append(errs, fmt.Errorf("notify departure of %s: %w", participant, err))
		}
	}

	return errors.Join(errs...)
}

func toggleKey(namespace string, chat transport.Identity) string {
	return namespace + ":" + string(chat)
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}

	return "OFF"
}
