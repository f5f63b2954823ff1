package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uncommonlabs/catalog-crawler/internal/app"
	"github.com/uncommonlabs/catalog-crawler/internal/config"
)

// newServeCmd creates the 'serve' subcommand running the HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawler HTTP service",
		Long: `Starts the HTTP API that accepts scrape triggers, reports job status,
and serves health and metrics endpoints. Crawls run in the background,
one at a time; the process drains cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if devMode {
				cfg.Logging.Development = true
			}
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
