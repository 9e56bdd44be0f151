package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"warden/pkg/channel"
	"warden/pkg/channel/telegram"
	"warden/pkg/config"
	"warden/pkg/gateway"
	"warden/pkg/logger"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Run enabled channels through the dispatch gateway",
	Long:    "Runs Warden against every enabled channel with health, readiness and plugin status endpoints. SIGHUP reloads the plugin directory.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runtime, err := gateway.NewRuntime(runCtx, cfg, log)
		if err != nil {
			log.Error("Failed to initialize dispatch runtime", "error", err)
			return
		}
		defer func() {
			if err := runtime.Close(); err != nil {
				log.Warn("Runtime shutdown incomplete", "error", err)
			}
		}()

		go reloadOnHangup(runCtx, runtime, log)

		svc, err := gateway.NewService(cfg, runtime, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started",
			"channels", enabledChannelNames(adapters),
			"public_mode", cfg.Bot.PublicMode,
			"plugins", strings.Join(runtime.Registry.Names(), ","),
			"sheng_provider", cfg.Builtins.Sheng.Provider,
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// reloadOnHangup re-reads the plugin directory on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, runtime *gateway.Runtime, log *slog.Logger) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			log.Info("Received SIGHUP, reloading plugins", "dir", runtime.Registry.Dir())
			_, _ = runtime.Reload(ctx)
		}
	}
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, cfg.Bot.PublicMode, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
