package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	unsetOverrideEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "bot": {"owner_id": "254700000000", "public_mode": false},
	  "channels": {"telegram": {"enabled": true, "token": "file-token"}},
	  "plugins": {"dir": "./ext", "timeout_seconds": 3, "disabled": [" menu.lua ", ""]},
	  "builtins": {"antilink": {"kick": true}, "sheng": {"provider": "phrasebook"}},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true, "components": {"dispatch": "warn"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("WARDEN_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Bot.OwnerID != "254700000000" {
		t.Fatalf("bot.owner_id = %q, want %q", cfg.Bot.OwnerID, "254700000000")
	}
	if cfg.Plugins.Dir != "./ext" || cfg.Plugins.TimeoutSeconds != 3 {
		t.Fatalf("plugins = %+v, want dir ./ext timeout 3", cfg.Plugins)
	}
	if len(cfg.Plugins.Disabled) != 1 || cfg.Plugins.Disabled[0] != "menu.lua" {
		t.Fatalf("plugins.disabled = %v, want [menu.lua]", cfg.Plugins.Disabled)
	}
	if !cfg.Builtins.AntiLink.Kick {
		t.Fatal("builtins.antilink.kick = false, want true")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource || cfg.Logging.Components["dispatch"] != "warn" {
		t.Fatalf("logging = %+v, want json/debug/add_source with dispatch at warn", cfg.Logging)
	}
	if cfg.Bot.MetadataTimeoutSeconds != DefaultMetadataTimeoutSeconds {
		t.Fatalf("bot.metadata_timeout_seconds = %d, want default", cfg.Bot.MetadataTimeoutSeconds)
	}
	if cfg.Settings.Path != DefaultSettingsPath {
		t.Fatalf("settings.path = %q, want default", cfg.Settings.Path)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	unsetOverrideEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"bot": {"owner_id": "1"}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("WARDEN_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", " env-token ")
	t.Setenv("OWNER_NUMBER", "254711111111")
	t.Setenv("PUBLIC_MODE", "true")
	t.Setenv("WARDEN_PLUGIN_DIR", "/srv/plugins")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("telegram token = %q, want env-token", cfg.Channels.Telegram.Token)
	}
	if cfg.Bot.OwnerID != "254711111111" {
		t.Fatalf("owner = %q, want env override", cfg.Bot.OwnerID)
	}
	if !cfg.Bot.PublicMode {
		t.Fatal("public_mode = false, want env override true")
	}
	if cfg.Plugins.Dir != "/srv/plugins" {
		t.Fatalf("plugins.dir = %q, want /srv/plugins", cfg.Plugins.Dir)
	}
}

func TestLoadConfigRejectsBadBoolOverride(t *testing.T) {
	unsetOverrideEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("WARDEN_CONFIG", path)
	t.Setenv("PUBLIC_MODE", "sometimes")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for invalid PUBLIC_MODE")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("WARDEN_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Plugins.Dir != DefaultPluginDir {
		t.Fatalf("plugins.dir = %q, want %q", cfg.Plugins.Dir, DefaultPluginDir)
	}
	if cfg.Plugins.TimeoutSeconds != DefaultPluginTimeoutSeconds {
		t.Fatalf("plugins.timeout_seconds = %d, want %d", cfg.Plugins.TimeoutSeconds, DefaultPluginTimeoutSeconds)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Fatal("telegram must be disabled by default")
	}
}

func unsetOverrideEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "OWNER_NUMBER", "PUBLIC_MODE", "WARDEN_PLUGIN_DIR", "WARDEN_SETTINGS_PATH"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
