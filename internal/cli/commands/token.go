package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gfnviewer/queuewatch/internal/auth"
	"github.com/gfnviewer/queuewatch/internal/config"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user>",
		Short: "Issue an API token for a configured user",
		Long: `Sign a token for the admin or one of the viewers listed in the config.
The token is accepted by the server as ?token=, the X-Queuewatch-Token
header, or an Authorization: Bearer header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, id, err := auth.New(cfg.Auth).Issue(args[0])
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "token for %s (%s)\n", id.User, id.Role)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
