// Package cmd defines the bootstrap CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/bootstrap"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/config"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/lifecycle"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/logging"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/server"
)

// cli carries state shared by the subcommands.
type cli struct {
	cfgFile string
	logger  *zap.Logger
	app     *server.App

	// newApp is replaced in tests.
	newApp func(ctx context.Context, cfg config.Config, logger *zap.Logger, guard *lifecycle.Guard) (*server.App, error)
	// guardOpts are passed to the lifecycle guard.
	guardOpts []lifecycle.Option
}

func newCLI() *cli {
	return &cli{
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger, guard *lifecycle.Guard) (*server.App, error) {
			return server.Build(ctx, cfg, logger, guard)
		},
	}
}

// newRootCmd creates the root command and its subcommands.
func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Resolves the database and browser a service needs, then serves it.",
		Long: `bootstrap acquires a Postgres connection and a headless browser binary
through ordered fallback tiers. Missing resources either put the process into
degraded mode or stop it, depending on DEPLOYMENT_MODE and DEGRADED_MODE.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Loads configuration and builds the application before any subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			c.logger = logger

			guard := lifecycle.NewGuard(logging.Component(logger, "lifecycle"), c.guardOpts...)
			guard.Register("logger", func(context.Context) error {
				_ = logger.Sync() //nolint:errcheck // stdout/stderr sync fails on some platforms
				return nil
			})
			guard.Start()

			c.app, err = c.newApp(cmd.Context(), cfg, logger, guard)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "optional YAML config file")

	cmd.AddCommand(c.newServeCmd())
	cmd.AddCommand(c.newResolveCmd())
	cmd.AddCommand(c.newInstallBrowserCmd())
	return cmd
}

// run executes args and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := c.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if c.app != nil {
		c.app.Shutdown()
	}
	return c.exitCode(err, stderr)
}

func (c *cli) exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bootstrap.ErrFatal):
		return 1
	default:
		if c.logger != nil {
			c.logger.Error("command execution failed", zap.Error(err))
		} else {
			fmt.Fprintf(stderr, "bootstrap: %v\n", err) //nolint:errcheck // best-effort diagnostics
		}
		return 1
	}
}

// Execute runs the CLI with os.Args and returns the exit code.
func Execute() int {
	return newCLI().run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
