package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// app is the state shared by the subcommands once configuration is loaded
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

// newRootCmd builds the command tree; running it without a subcommand serves the API
func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "expense-approval",
		Short: "Expense approval workflow server",
		Long: `Expense approval routes submitted expenses through each company's
approval rules and serves the REST API for employees, approvers and admins.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")

	root.AddCommand(newServeCmd(a), newIssueTokenCmd(a), newMigrateCmd(a))
	return root
}

// load reads .env, the config file and the environment, then builds the logger
func (a *app) load() error {
	// A missing .env is normal outside development
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// start returns a started container; the caller closes it with stop
func (a *app) start(ctx context.Context) (*container.Container, error) {
	c, err := container.NewContainer(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		a.stop(c)
		return nil, err
	}
	return c, nil
}

func (a *app) stop(c *container.Container) {
	if err := c.Close(); err != nil {
		a.logger.Error("Container close failed", zap.Error(err))
	}
}
