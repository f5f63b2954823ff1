// Package cmd defines the CLI commands for the catalogcrawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	devMode bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogcrawler",
		Short: "Two-locale catalog crawler for the UNCOMMON storefronts.",
		Long: `catalogcrawler keeps the product catalog in sync with the two UNCOMMON
storefronts. It walks the paginated listings of the global and kr sites,
merges per-locale fields into a single product row, stores detail images
for newly discovered products, and notifies the indexing service when a
run completes.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (optional; environment variables use the CRAWLER_ prefix)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false,
		"development mode: human-readable logs at debug level")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// Load .env early so CRAWLER_* variables are visible to Viper.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
