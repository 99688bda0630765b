// Package app initializes and holds long-lived services, acting as the
// dependency injection container for both ingestd subcommands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/analysis"
	"github.com/meridian-news/ingest/internal/article"
	"github.com/meridian-news/ingest/internal/bus"
	"github.com/meridian-news/ingest/internal/clock/system"
	"github.com/meridian-news/ingest/internal/config"
	"github.com/meridian-news/ingest/internal/embed"
	"github.com/meridian-news/ingest/internal/fetcher"
	"github.com/meridian-news/ingest/internal/ingest"
	"github.com/meridian-news/ingest/internal/logging"
	"github.com/meridian-news/ingest/internal/render"
	"github.com/meridian-news/ingest/internal/storage/gcs"
	"github.com/meridian-news/ingest/internal/storage/memory"
	"github.com/meridian-news/ingest/internal/store"
)

// Bus unifies the provider capabilities both subcommands need.
type Bus interface {
	ingest.Publisher
	bus.Consumer
	bus.DeadLetterer
	Close() error
}

// App holds all the shared, long-lived services. It is initialized once at
// startup and handed to the subcommand that runs.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *store.Store
	Blobs    ingest.BlobStore
	Bus      Bus
	Plain    ingest.Fetcher
	Rendered ingest.Fetcher
	Parser   *article.Parser
	Analyzer ingest.Analyzer
	Embedder ingest.Embedder
	Clock    ingest.Clock
	Sleeper  ingest.Sleeper

	closers []func() error
}

// New builds the App from configuration, failing fast if any critical service
// cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Info("initializing services")

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Clock:   system.New(),
		Sleeper: system.NewSleeper(),
		Parser:  article.NewParser(),
	}

	a.Store, err = store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, func() error { a.Store.Close(); return nil })

	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("using gcs blob store", zap.String("bucket", cfg.Storage.GCSBucket))
		blobs, err := gcs.New(ctx, cfg.Storage.GCSBucket, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize blob store: %w", err)
		}
		a.Blobs = blobs
		a.closers = append(a.closers, blobs.Close)
	default:
		logger.Info("using in-memory blob store")
		a.Blobs = memory.New()
	}

	switch cfg.PubSub.Provider {
	case "pubsub":
		logger.Info("using gcp pub/sub bus", zap.String("topic", cfg.PubSub.TopicID))
		b, err := bus.NewPubSub(ctx, bus.PubSubConfig{
			ProjectID:       cfg.PubSub.ProjectID,
			TopicID:         cfg.PubSub.TopicID,
			SubscriptionID:  cfg.PubSub.SubscriptionID,
			DeadLetterTopic: cfg.PubSub.DeadLetterTopic,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize bus: %w", err)
		}
		a.Bus = b
		a.closers = append(a.closers, b.Close)
	default:
		logger.Info("using in-memory bus")
		a.Bus = bus.NewMemory(256)
	}

	a.Plain = fetcher.NewPlain(fetcher.Config{})

	switch cfg.Render.Provider {
	case "chromedp":
		logger.Info("using local chromedp renderer")
		browser, err := render.NewBrowser(render.BrowserConfig{
			MaxParallel:       cfg.Render.MaxParallel,
			NavigationTimeout: cfg.Render.NavTimeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize renderer: %w", err)
		}
		a.Rendered = browser
		a.closers = append(a.closers, func() error { browser.Close(); return nil })
	default:
		logger.Info("using hosted rendering service")
		a.Rendered = render.NewServiceClient(render.ServiceConfig{
			BaseURL:   cfg.Render.BaseURL,
			AccountID: cfg.Render.AccountID,
			APIToken:  cfg.Render.APIToken,
			QPS:       cfg.Render.QPS,
		}, logger)
	}

	a.Analyzer = analysis.New(analysis.Config{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)
	a.Embedder = embed.New(embed.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		APIToken:  cfg.Embeddings.APIToken,
		Dimension: cfg.Embeddings.Dimension,
	})

	logger.Info("services initialized")
	return a, nil
}

// Close shuts services down in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error closing service", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
