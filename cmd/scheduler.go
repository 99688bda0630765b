package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/api"
	"github.com/meridian-news/ingest/internal/feed"
	"github.com/meridian-news/ingest/internal/fetcher"
	"github.com/meridian-news/ingest/internal/scraper"
)

// newSchedulerCmd runs the per-source scraper fleet and the admin surface.
func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Runs the per-source feed scrapers and the admin API",
		RunE:  runScheduler,
	}
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := scraper.NewRegistry(scraper.Deps{
		Sources:   a.Store.Sources,
		Articles:  a.Store.Articles,
		State:     a.Store.State,
		Publisher: a.Bus,
		Fetcher:   fetcher.NewPlain(fetcher.Config{}),
		Parser:    feed.NewParser(),
		Clock:     a.Clock,
		Sleeper:   a.Sleeper,
		Logger:    a.Logger,
	})
	if err := registry.Resume(ctx); err != nil {
		return fmt.Errorf("resume scrapers: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           api.NewServer(registry, a.Store.Sources, a.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.Logger.Info("admin api listening", zap.Int("port", a.Config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("admin api failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.Logger.Info("shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("admin api shutdown", zap.Error(err))
	}
	registry.Wait()
	return nil
}
