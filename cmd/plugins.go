package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"warden/pkg/config"
	"warden/pkg/plugin"
	pluginjs "warden/pkg/plugin/js"
	pluginlua "warden/pkg/plugin/lua"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Load the plugin directory once and report the result",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		registry := plugin.NewRegistry(cfg.Plugins.Dir, slog.New(slog.DiscardHandler),
			pluginlua.Loader{},
			pluginjs.Loader{},
		)
		registry.Disable(cfg.Plugins.Disabled...)
		defer registry.Close()

		report, _ := registry.Load(cmd.Context())
		fmt.Print(renderReport(report))
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func renderReport(report plugin.Report) string {
	var (
		title  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("22")).Padding(0, 1)
		ok     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
		failed = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
		muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	)

	var b strings.Builder
	b.WriteString(title.Render("plugins: "+report.Dir) + "\n")

	if report.DirErr != nil {
		b.WriteString(failed.Render("  unavailable ") + muted.Render(report.DirErr.Error()) + "\n")
		return b.String()
	}

	for _, name := range report.Loaded {
		b.WriteString(ok.Render("  loaded   ") + name + "\n")
	}
	for _, name := range report.Skipped {
		b.WriteString(muted.Render("  skipped  " + name) + "\n")
	}
	for _, err := range report.Errors {
		line := err.Error()
		var loadErr *plugin.LoadError
		if errors.As(err, &loadErr) {
			line = filepath.Base(loadErr.Path) + ": " + loadErr.Err.Error()
		}
		b.WriteString(failed.Render("  failed   ") + line + "\n")
	}
	if len(report.Loaded)+len(report.Skipped)+len(report.Errors) == 0 {
		b.WriteString(muted.Render("  no plugins found") + "\n")
	}

	return b.String()
}
