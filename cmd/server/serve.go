package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server on the configured host and port.
The server runs until SIGINT or SIGTERM, then drains pending notifications and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	c, err := a.start(ctx)
	if err != nil {
		a.logger.Error("Failed to start container", zap.Error(err))
		return err
	}
	defer a.stop(c)

	a.logger.Info("Starting expense approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("database", a.cfg.Database.Driver))

	// Start blocks until a signal cancels ctx
	if err := c.Server().Start(ctx); err != nil {
		a.logger.Error("Server exited with error", zap.Error(err))
		return err
	}

	a.logger.Info("Server exited successfully")
	return nil
}
