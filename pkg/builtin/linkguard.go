package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"warden/pkg/config"
)

// defaultLinkPatterns matches group invite links for the common networks.
var defaultLinkPatterns = []string{
	`(?i)chat\.whatsapp\.com/[A-Za-z0-9]+`,
	`(?i)(?:t|telegram)\.me/(?:\+|joinchat/)[A-Za-z0-9_-]+`,
	`(?i)discord(?:\.gg|(?:app)?\.com/invite)/[A-Za-z0-9-]+`,
}

// LinkGuard removes disallowed invite links posted by regular members.
type LinkGuard struct {
	patterns []*regexp.Regexp
	kick     bool
	disabled bool
	log      *slog.Logger
}

// NewLinkGuard compiles the configured patterns, falling back to defaults.
func NewLinkGuard(cfg config.AntiLinkConfig, log *slog.Logger) (*LinkGuard, error) {
	if log == nil {
		log = slog.Default()
	}

	sources := cfg.Patterns
	if len(sources) == 0 {
		sources = defaultLinkPatterns
	}

	patterns := make([]*regexp.Regexp, 0, len(sources))
	for _, source := range sources {
		pattern, err := regexp.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("compile antilink pattern %q: %w", source, err)
		}
		patterns = append(patterns, pattern)
	}

	return &LinkGuard{
		patterns: patterns,
		kick:     cfg.Kick,
		disabled: cfg.Disabled,
		log:      log.With("component", "builtin.antilink"),
	}, nil
}

func (g *LinkGuard) Name() string {
	return "antilink"
}

// Match returns the first disallowed link found in body.
func (g *LinkGuard) Match(body string) (string, bool) {
	for _, pattern := range g.patterns {
		if found := pattern.FindString(body); found != "" {
			return found, true
		}
	}

	return "", false
}

func (g *LinkGuard) Run(ctx context.Context, in Input) error {
	msg := in.Message
	if g.disabled || !msg.IsGroup || msg.Body == "" {
		return nil
	}

	link, ok := g.Match(msg.Body)
	if !ok {
		return nil
	}
	if in.Access.IsSenderAdmin || in.Access.IsCreator {
		return nil
	}

	if !in.Access.IsBotAdmin {
		g.log.Info("Link detected without admin rights", "chat_id", msg.From, "sender_id", msg.Sender)
		return reply(ctx, in, "Group links are not allowed here, but I need admin rights to remove them.")
	}

	g.log.Info("Removing disallowed link", "chat_id", msg.From, "sender_id", msg.Sender, "link", link, "kick", g.kick)

	var errs []error
	if err := in.Transport.DeleteMessage(ctx, msg.From, msg.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete message: %w", err))
	}

	notice := fmt.Sprintf("%s, group links are not allowed here.", displayName(msg.SenderName, string(msg.Sender)))
	if g.kick {
		notice = fmt.Sprintf("%s was removed for sharing a group link.", displayName(msg.SenderName, string(msg.Sender)))
	}
	if err := in.Transport.SendText(ctx, msg.From, notice, ""); err != nil {
		errs = append(errs, fmt.Errorf("send notice: %w", err))
	}

	if g.kick {
		if err := in.Transport.RemoveParticipant(ctx, msg.From, msg.Sender); err != nil {
			errs = append(errs, fmt.Errorf("remove participant: %w", err))
		}
	}

	return errors.Join(errs...)
}

func displayName(name string, fallback string) string {
	if name != "" {
		return name
	}

	return fallback
}
