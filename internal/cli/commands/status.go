package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/state"
	"github.com/gfnviewer/queuewatch/internal/tui/client"
)

// StatusOptions holds command-line options for the status command.
type StatusOptions struct {
	URL   string
	Token string
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the server's tracking status",
		Long: `Ask a running queuewatch server for its current tracking status and
print it once. Exits with status 1 when nothing is being tracked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.URL, "url", "u", "http://127.0.0.1:8787", "Server base URL")
	cmd.Flags().StringVarP(&opts.Token, "token", "t", "", "API token")

	return cmd
}

func runStatus(out io.Writer, opts *StatusOptions) error {
	ExitCode = 0

	token := opts.Token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	st, err := client.NewHTTPClient(opts.URL, token).Status()
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	printStatus(out, st)
	if !st.Tracking {
		ExitCode = 1
	}
	return nil
}

func printStatus(out io.Writer, st *state.Status) {
	if st.Tracking {
		fmt.Fprintf(out, "tracking: yes (started by %s)\n", st.StartedBy)
	} else if st.Reason != "" {
		fmt.Fprintf(out, "tracking: no (%s)\n", st.Reason)
	} else {
		fmt.Fprintln(out, "tracking: no")
	}
	if st.Text != "" {
		fmt.Fprintln(out, st.Text)
	}
	if st.Last != nil {
		fmt.Fprintf(out, "last event: %s at %s\n", st.Last.State, st.Last.ObservedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "client running: %v\n", st.ClientRunning)
	fmt.Fprintf(out, "log health: %s\n", st.Health.Status)
}
