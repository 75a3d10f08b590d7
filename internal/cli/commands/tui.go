package commands

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/config"
	"github.com/gfnviewer/queuewatch/internal/logger"
	"github.com/gfnviewer/queuewatch/internal/tui/app"
	"github.com/gfnviewer/queuewatch/internal/tui/client"
)

const tokenEnv = "QUEUEWATCH_TOKEN"

// TUIOptions holds command-line options for the tui command.
type TUIOptions struct {
	URL   string
	Token string
}

// NewTUICommand creates the tui command.
func NewTUICommand(configPath *string) *cobra.Command {
	opts := &TUIOptions{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Follow the queue in the terminal",
		Long: `Connect to a queuewatch server and show the current queue position,
progress and recent notifications. Reconnects automatically.

Keys: s start tracking, x stop tracking, ? about, q quit.
The token may also be given in the ` + tokenEnv + ` environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(*configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.URL, "url", "u", "http://127.0.0.1:8787", "Server base URL")
	cmd.Flags().StringVarP(&opts.Token, "token", "t", "", "API token")

	return cmd
}

func runTUI(configPath string, opts *TUIOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.NewEmbedded(cfg.Log)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	token := opts.Token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	wsURL, err := websocketURL(opts.URL)
	if err != nil {
		return err
	}

	model := app.New(
		client.NewWSClient(wsURL, token, log.With("component", "ws")),
		client.NewHTTPClient(opts.URL, token),
	)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// websocketURL turns the server base URL into its /ws endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
