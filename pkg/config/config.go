package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultPluginDir              = "plugins"
	DefaultPluginTimeoutSeconds   = 10
	DefaultMetadataTimeoutSeconds = 10
	DefaultSettingsPath           = "data/settings.db"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	Channels  ChannelsConfig  `json:"channels"`
	Plugins   PluginsConfig   `json:"plugins"`
	Builtins  BuiltinsConfig  `json:"builtins"`
	Providers ProvidersConfig `json:"providers"`
	Settings  SettingsConfig  `json:"settings"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`

	// Components overrides Level per component prefix, e.g. {"dispatch": "debug"}.
	Components map[string]string `json:"components,omitempty"`
}

// BotConfig holds identity and gating settings for dispatch.
type BotConfig struct {
	OwnerID                string `json:"owner_id"`
	PublicMode             bool   `json:"public_mode"`
	MetadataTimeoutSeconds int    `json:"metadata_timeout_seconds"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// PluginsConfig controls plugin discovery and supervision.
type PluginsConfig struct {
	Dir            string   `json:"dir"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Watch          bool     `json:"watch"`
	Disabled       []string `json:"disabled,omitempty"`
}

// BuiltinsConfig configures the compiled-in behaviors.
type BuiltinsConfig struct {
	AntiLink AntiLinkConfig `json:"antilink"`
	Sheng    ShengConfig    `json:"sheng"`
}

// AntiLinkConfig configures the link-guard behavior.
type AntiLinkConfig struct {
	Disabled bool     `json:"disabled"`
	Patterns []string `json:"patterns,omitempty"`
	Kick     bool     `json:"kick"`
}

// ShengConfig configures sheng chat replies.
type ShengConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenAI OpenAIProviderConfig `json:"openai"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	APIKeyEnv             string `json:"api_key_env"`
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// SettingsConfig locates the persisted toggle store.
type SettingsConfig struct {
	Path string `json:"path"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// envOverrides lists environment variables applied on top of config.json.
type envOverrides struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`
	OwnerNumber   string `env:"OWNER_NUMBER"`
	PublicMode    *bool  `env:"PUBLIC_MODE"`
	PluginDir     string `env:"WARDEN_PLUGIN_DIR"`
	SettingsPath  string `env:"WARDEN_SETTINGS_PATH"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env file: %w", err)
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	if token := strings.TrimSpace(overrides.TelegramToken); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if owner := strings.TrimSpace(overrides.OwnerNumber); owner != "" {
		cfg.Bot.OwnerID = owner
	}
	if overrides.PublicMode != nil {
		cfg.Bot.PublicMode = *overrides.PublicMode
	}
	if dir := strings.TrimSpace(overrides.PluginDir); dir != "" {
		cfg.Plugins.Dir = dir
	}
	if path := strings.TrimSpace(overrides.SettingsPath); path != "" {
		cfg.Settings.Path = path
	}

	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Plugins.Dir) == "" {
		c.Plugins.Dir = DefaultPluginDir
	}
	if c.Plugins.TimeoutSeconds <= 0 {
		c.Plugins.TimeoutSeconds = DefaultPluginTimeoutSeconds
	}
	if c.Bot.MetadataTimeoutSeconds <= 0 {
		c.Bot.MetadataTimeoutSeconds = DefaultMetadataTimeoutSeconds
	}
	if strings.TrimSpace(c.Settings.Path) == "" {
		c.Settings.Path = DefaultSettingsPath
	}
	c.Plugins.Disabled = compact(c.Plugins.Disabled)
}

// Default returns a config with defaults applied and nothing enabled.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// compact trims values and drops empties.
func compact(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is WARDEN_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("WARDEN_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("WARDEN_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
