package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/config"
	"github.com/gfnviewer/queuewatch/internal/dispatch"
)

// NewScanCommand creates the scan command.
func NewScanCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <log-file>",
		Short: "Classify a whole client log once",
		Long: `Read an entire client log and print the queue state it ends in, using
the configured markers.

A session marker anywhere in the file outranks status lines; among status
lines the last one wins. Exits with status 1 when nothing is recognised.

Example:
  queuewatch scan debug.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], *configPath)
		},
	}
}

func runScan(cmd *cobra.Command, logFile, configPath string) error {
	ExitCode = 0

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	out := cmd.OutOrStdout()
	ev, ok := classifier.Classify(string(data))
	if !ok {
		fmt.Fprintln(out, "no queue information found")
		ExitCode = 1
		return nil
	}

	fmt.Fprintf(out, "state: %s\n", ev.State)
	if ev.Value != "" {
		fmt.Fprintf(out, "value: %s\n", ev.Value)
	}
	fmt.Fprintln(out, dispatch.Text(ev))
	return nil
}
