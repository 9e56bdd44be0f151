package builtin

import (
	"log/slog"

	"warden/pkg/config"
)

// Set bundles the builtin behaviors so other subsystems (group updates,
// status output) can reach the same instances the router runs.
type Set struct {
	LinkGuard *LinkGuard
	AntiLeft  *AntiLeft
	Sheng     *Sheng
	Router    *Router
}

// New wires the fixed builtin order: link-guard, anti-left toggle, sheng
// command, sheng chat.
func New(cfg config.BuiltinsConfig, settings Settings, responder Responder, log *slog.Logger) (*Set, error) {
	if settings == nil {
		settings = NewMemorySettings()
	}

	linkGuard, err := NewLinkGuard(cfg.AntiLink, log)
	if err != nil {
		return nil, err
	}
	antiLeft := NewAntiLeft(settings, log)
	sheng := NewSheng(settings, responder, log)

	return &Set{
		LinkGuard: linkGuard,
		AntiLeft:  antiLeft,
		Sheng:     sheng,
		Router:    NewRouter(log, linkGuard, antiLeft, sheng.Command(), sheng.Chat()),
	}, nil
}
