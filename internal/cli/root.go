// Package cli provides the command-line interface for queuewatch.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/cli/commands"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		// SilenceErrors prevents Cobra from printing this itself.
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "queuewatch",
		Short: "Follow the GeForce NOW queue from its client log",
		Long: `queuewatch tails the GeForce NOW client log, recognises queue position
updates and session outcomes, and pushes them to subscribers over a
WebSocket API.

The admin starts and stops tracking; viewers receive every notification.
Run "queuewatch serve" next to the client and "queuewatch tui" anywhere
that can reach it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")

	rootCmd.AddCommand(commands.NewServeCommand(&configPath))
	rootCmd.AddCommand(commands.NewTUICommand(&configPath))
	rootCmd.AddCommand(commands.NewScanCommand(&configPath))
	rootCmd.AddCommand(commands.NewTokenCommand(&configPath))
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
