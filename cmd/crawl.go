package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uncommonlabs/catalog-crawler/internal/app"
	"github.com/uncommonlabs/catalog-crawler/internal/config"
)

// newCrawlCmd creates the 'crawl' subcommand for one-shot runs without the
// HTTP service or the job lifecycle.
func newCrawlCmd() *cobra.Command {
	var (
		targetURL   string
		maxProducts int
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a single crawl and exit",
		Long: `Runs one complete crawl synchronously: the global pass first, then kr.
With --dry-run only the listing pages are fetched and the discovered
item links are counted. --max-products caps each locale pass.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxProducts < 0 {
				return errors.New("--max-products must be zero or positive")
			}
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
			defer func() { _ = a.Close(cmd.Context()) }()

			var limit *int
			switch {
			case dryRun:
				zero := 0
				limit = &zero
			case cmd.Flags().Changed("max-products"):
				limit = &maxProducts
			}

			count, err := a.RunOnce(cmd.Context(), targetURL, limit)
			if err != nil {
				return fmt.Errorf("crawl failed after %d products: %w", count, err)
			}
			if dryRun {
				fmt.Printf("dry run: %d item links found\n", count)
			} else {
				fmt.Printf("crawl complete: %d products processed\n", count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targetURL, "target-url", "", "override the global listing seed URL")
	cmd.Flags().IntVar(&maxProducts, "max-products", 0, "cap each locale pass at N products (0 counts links only)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch listings only and report the link count")
	return cmd
}
