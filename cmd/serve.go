package cmd

import (
	"github.com/spf13/cobra"
)

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Resolve resources and serve the HTTP API",
		Long: `Resolves the database and the browser, then serves /healthz, /readyz,
/metrics and /v1/snapshots until SIGINT or SIGTERM. Exits 1 only when the
database is required and unavailable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Run(cmd.Context())
		},
	}
}
