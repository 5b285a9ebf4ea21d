package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/container"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the database schema",
		Long: `Apply pending sqlite migrations, or create the MongoDB indexes,
for the configured database driver. With --seed the configured users are upserted too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := container.ProvideDatabase(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			defer func() {
				if err := data.Close(context.WithoutCancel(ctx)); err != nil {
					a.logger.Error("Failed to close database", zap.Error(err))
				}
			}()

			if seed {
				if err := container.SeedUsers(ctx, data.Repos.Users, a.cfg.Users, a.logger); err != nil {
					return err
				}
			}

			a.logger.Info("Database schema is up to date", zap.String("driver", a.cfg.Database.Driver))
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the users listed in the config")
	return cmd
}
