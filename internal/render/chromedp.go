package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

// BrowserConfig controls the local chromedp renderer.
type BrowserConfig struct {
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Browser implements ingest.Fetcher with a local headless Chrome, for
// deployments without a hosted rendering service. It runs the same cleanup
// scripts the service provider injects.
type Browser struct {
	cfg         BrowserConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewBrowser creates a Browser backed by a shared exec allocator.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// Fetch navigates to the URL, waits for a main-content container, runs the
// cleanup scripts, and returns the resulting DOM.
func (b *Browser) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetUserAgentOverride(ingest.RandomUserAgent()).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		waitForContent(),
	}
	for _, script := range Scripts() {
		actions = append(actions, chromedp.Evaluate(script, nil))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("%w: chromedp run: %v", ingest.ErrRender, err)
	}
	b.logger.Debug("rendered page locally", zap.String("url", pageURL), zap.Int("bytes", len(html)))
	return []byte(html), nil
}

// waitForContent polls for WaitSelector but tolerates pages that never show a
// recognizable container; cleanup scripts still run against whatever loaded.
func waitForContent() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, WaitSelectorTimeoutMs*time.Millisecond)
		defer cancel()
		var found bool
		expr := fmt.Sprintf("document.querySelector(%q) !== null", WaitSelector)
		for {
			if err := chromedp.Evaluate(expr, &found).Do(waitCtx); err == nil && found {
				return nil
			}
			select {
			case <-waitCtx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
		}
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}
