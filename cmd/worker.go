package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meridian-news/ingest/internal/dispatcher"
	"github.com/meridian-news/ingest/internal/worker"
)

// newWorkerCmd runs the bus dispatcher and the enrichment worker.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consumes article batches and runs the enrichment pipeline",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(
		a.Store.Articles,
		a.Blobs,
		a.Plain,
		a.Rendered,
		a.Parser,
		a.Analyzer,
		a.Embedder,
		a.Clock,
		a.Sleeper,
		worker.Config{
			TrickyDomains:   a.Config.Scrape.TrickyDomains,
			FreshnessWindow: a.Config.Scrape.FreshnessWindow,
			MaxConcurrent:   a.Config.Scrape.MaxConcurrent,
			GlobalCooldown:  a.Config.Scrape.GlobalCooldown,
			DomainCooldown:  a.Config.Scrape.DomainCooldown,
			ScrapeTimeout:   a.Config.Scrape.Timeout,
		},
		a.Logger,
	)

	d := dispatcher.New(a.Bus, a.Bus, w, a.Sleeper, dispatcher.Config{
		MaxDeliveryAttempts: a.Config.Dispatch.MaxDeliveryAttempts,
		RetryDelay:          a.Config.Dispatch.RetryDelay,
	}, a.Logger)

	a.Logger.Info("worker consuming article batches")
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
