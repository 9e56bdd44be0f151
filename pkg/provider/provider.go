// Package provider resolves the responder behind sheng chat mode.
package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"warden/pkg/builtin"
	"warden/pkg/config"
	provideropenai "warden/pkg/provider/openai"
)

const (
	Phrasebook = "phrasebook"
	OpenAI     = "openai"
)

// New returns the sheng responder named by builtins.sheng.provider.
func New(cfg *config.Config) (builtin.Responder, error) {
	providerID := strings.TrimSpace(cfg.Builtins.Sheng.Provider)
	if providerID == "" {
		providerID = Phrasebook
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving sheng responder", "provider", providerID)

	switch providerID {
	case Phrasebook:
		return builtin.Phrasebook{}, nil
	case OpenAI:
		return provideropenai.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
