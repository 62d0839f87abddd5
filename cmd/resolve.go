package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/bootstrap"
)

func (c *cli) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Resolve resources once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.app.Resolve(cmd.Context(), true)
			if werr := writeReport(cmd, res.Report); werr != nil {
				return werr
			}
			return err
		},
	}
}

func (c *cli) newInstallBrowserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-browser",
		Short: "Locate or download the browser binary",
		Long: `Runs only the browser tiers. A missing browser is reported but never
fails the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.app.Resolve(cmd.Context(), false)
			if err != nil {
				c.logger.Warn("browser installation incomplete")
			}
			return writeReport(cmd, res.Report)
		},
	}
}

func writeReport(cmd *cobra.Command, report bootstrap.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
