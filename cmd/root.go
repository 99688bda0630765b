// Package cmd defines the CLI commands for the ingestd executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-news/ingest/internal/app"
	"github.com/meridian-news/ingest/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingestd",
		Short: "News ingestion and enrichment pipeline.",
		Long: `ingestd harvests RSS feeds on per-source schedules, extracts the full
body of each newly-discovered article, analyzes it with an LLM, embeds it
for semantic search, and persists both the structured analysis and raw text.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newSchedulerCmd())
	cmd.AddCommand(newWorkerCmd())
	return cmd
}

// buildApp loads configuration and initializes the service container for a
// subcommand.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
