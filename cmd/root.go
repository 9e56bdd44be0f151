/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Group chat moderation bot with scriptable plugins",
	Long: `Warden dispatches chat messages through access checks, builtin
moderation behaviors (link guard, anti-left, sheng chat) and Lua or
JavaScript plugins loaded from a directory.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
