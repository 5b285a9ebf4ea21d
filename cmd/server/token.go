package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIssueTokenCmd(a *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Print a bearer token for a directory user",
		Long: `Sign a bearer token for a user in the directory and print it.
The user must exist, usually through the users section of the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.start(ctx)
			if err != nil {
				return err
			}
			defer a.stop(c)

			userID := args[0]
			if _, err := c.Repositories().Users.GetByID(ctx, userID); err != nil {
				return fmt.Errorf("cannot issue token: %w", err)
			}
			token, err := c.Authenticator().Issue(userID, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
