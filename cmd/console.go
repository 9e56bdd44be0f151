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

	"warden/pkg/bus"
	"warden/pkg/channel/console"
	"warden/pkg/config"
	"warden/pkg/gateway"
	"warden/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var consoleFlags struct {
	sender  string
	name    string
	group   bool
	admin   bool
	public  bool
	logFile string
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the dispatch pipeline from the terminal",
	Long: `Runs builtins and plugins against a local terminal chat. Lines starting
with ':' are session directives: :group, :admin, :join <name>, :leave <name>.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		logOutput, err := os.OpenFile(consoleFlags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Printf("failed to open log file: %v\n", err)
			return
		}
		defer logOutput.Close()

		appLogger, err := logger.NewWithWriter(cfg.Logging, logOutput)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.console")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runConsole(runCtx, cfg, log); err != nil {
			fmt.Printf("console failed: %v\n", err)
			return
		}

		fmt.Print("\033[H\033[2J")
		fmt.Println(renderGoodbyeBanner())
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleFlags.sender, "as", "", "sender identity (defaults to bot.owner_id)")
	consoleCmd.Flags().StringVar(&consoleFlags.name, "name", "", "sender display name")
	consoleCmd.Flags().BoolVar(&consoleFlags.group, "group", false, "start as a group chat")
	consoleCmd.Flags().BoolVar(&consoleFlags.admin, "admin", false, "list the sender as a group admin")
	consoleCmd.Flags().BoolVar(&consoleFlags.public, "public", false, "answer every sender regardless of privilege")
	consoleCmd.Flags().StringVar(&consoleFlags.logFile, "log-file", "warden-console.log", "file receiving structured logs")
}

func runConsole(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	runtime, err := gateway.NewRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			log.Warn("Runtime shutdown incomplete", "error", err)
		}
	}()

	adapter := console.NewAdapter(consoleOptions(cfg), log)
	handler, err := runtime.Attach(adapter)
	if err != nil {
		return err
	}

	go bus.ObserveEvents(ctx, runtime.Bus, log)
	go func() {
		if err := runtime.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Plugin watcher stopped", "error", err)
		}
	}()

	log.Info("Console session started", "plugins", strings.Join(runtime.Registry.Names(), ","))
	return adapter.Run(ctx, handler)
}

func consoleOptions(cfg *config.Config) console.Options {
	sender := strings.TrimSpace(consoleFlags.sender)
	if sender == "" {
		sender = cfg.Bot.OwnerID
	}

	return console.Options{
		Sender:      sender,
		SenderName:  consoleFlags.name,
		PublicMode:  consoleFlags.public || cfg.Bot.PublicMode,
		Group:       consoleFlags.group,
		SenderAdmin: consoleFlags.admin,
	}
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("22")).
		Padding(1, 2)

	return style.Render("Warden console closed")
}
