// Package worker drives each discovered article through the enrichment
// pipeline: scrape, analyze, embed, store, commit.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
	"github.com/meridian-news/ingest/internal/metrics"
	"github.com/meridian-news/ingest/internal/ratelimit"
)

// pdfFailReason is recorded for skipped PDF articles.
const pdfFailReason = "PDF article - cannot process"

// ArticleParser extracts main content from fetched HTML.
type ArticleParser interface {
	Parse(html []byte, pageURL string) (ingest.ParsedArticle, error)
}

// Config tunes the pipeline.
type Config struct {
	// TrickyDomains are hosts that never work without browser rendering.
	TrickyDomains []string
	// FreshnessWindow bounds how old an article may be and still be enriched.
	FreshnessWindow time.Duration

	MaxConcurrent  int
	GlobalCooldown time.Duration
	DomainCooldown time.Duration

	ScrapeTimeout  time.Duration
	AnalyzeTimeout time.Duration
	Retry          ingest.RetryPolicy
}

func (c *Config) applyDefaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 48 * time.Hour
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.GlobalCooldown <= 0 {
		c.GlobalCooldown = time.Second
	}
	if c.DomainCooldown <= 0 {
		c.DomainCooldown = 5 * time.Second
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = 2 * time.Minute
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = time.Minute
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = ingest.RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
	}
}

// Worker consumes article-id batches and enriches each article.
type Worker struct {
	articles ingest.ArticleStore
	blobs    ingest.BlobStore
	plain    ingest.Fetcher
	rendered ingest.Fetcher
	parser   ArticleParser
	analyzer ingest.Analyzer
	embedder ingest.Embedder
	clock    ingest.Clock
	sleeper  ingest.Sleeper
	logger   *zap.Logger
	cfg      Config

	tricky map[string]struct{}
}

// New constructs a Worker.
func New(
	articles ingest.ArticleStore,
	blobs ingest.BlobStore,
	plain ingest.Fetcher,
	rendered ingest.Fetcher,
	parser ArticleParser,
	analyzer ingest.Analyzer,
	embedder ingest.Embedder,
	clock ingest.Clock,
	sleeper ingest.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	cfg.applyDefaults()
	tricky := make(map[string]struct{}, len(cfg.TrickyDomains))
	for _, d := range cfg.TrickyDomains {
		tricky[strings.ToLower(d)] = struct{}{}
	}
	return &Worker{
		articles: articles,
		blobs:    blobs,
		plain:    plain,
		rendered: rendered,
		parser:   parser,
		analyzer: analyzer,
		embedder: embedder,
		clock:    clock,
		sleeper:  sleeper,
		logger:   logger,
		cfg:      cfg,
		tricky:   tricky,
	}
}

// scraped is what the scrape step hands to analysis.
type scraped struct {
	article     ingest.Article
	parsed      ingest.ParsedArticle
	usedBrowser bool
}

// ProcessBatch runs the full pipeline over a batch of article ids. Every
// article ends in exactly one terminal status; redelivered ids are filtered
// out up front, which makes the whole batch idempotent.
func (w *Worker) ProcessBatch(ctx context.Context, ids []int64) error {
	cutoff := w.clock.Now().Add(-w.cfg.FreshnessWindow)
	articles, err := w.articles.SelectProcessable(ctx, ids, cutoff)
	if err != nil {
		return fmt.Errorf("select processable articles: %w", err)
	}
	if len(articles) == 0 {
		w.logger.Debug("batch contained no processable articles", zap.Int("ids", len(ids)))
		return nil
	}
	w.logger.Info("processing article batch",
		zap.Int("requested", len(ids)), zap.Int("processable", len(articles)))

	fetched, err := w.scrapeAll(ctx, articles)
	if err != nil {
		return err
	}

	// Steps 2-4 run per article, in parallel across the batch; each article's
	// steps stay strictly ordered inside its goroutine.
	var wg sync.WaitGroup
	for _, item := range fetched {
		wg.Add(1)
		go func(item scraped) {
			defer wg.Done()
			w.enrich(ctx, item)
		}(item)
	}
	wg.Wait()
	return ctx.Err()
}

// scrapeAll is step 1: rate-limited fetch plus content extraction.
func (w *Worker) scrapeAll(ctx context.Context, articles []ingest.Article) ([]scraped, error) {
	byID := make(map[int64]ingest.Article, len(articles))
	items := make([]ratelimit.Item, 0, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
		items = append(items, ratelimit.Item{ID: a.ID, URL: a.URL})
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent:  w.cfg.MaxConcurrent,
		GlobalCooldown: w.cfg.GlobalCooldown,
		DomainCooldown: w.cfg.DomainCooldown,
	}, w.clock, w.sleeper, w.logger)

	return ratelimit.ProcessBatch(ctx, limiter, items,
		func(ctx context.Context, item ratelimit.Item, host string) (scraped, error) {
			return w.scrapeOne(ctx, byID[item.ID], host)
		})
}

// scrapeOne fetches and extracts a single article, writing its terminal
// failure status itself. Returned errors only signal "drop from pipeline".
func (w *Worker) scrapeOne(ctx context.Context, a ingest.Article, host string) (scraped, error) {
	logger := w.logger.With(zap.Int64("article_id", a.ID), zap.String("url", a.URL))

	if strings.HasSuffix(strings.ToLower(a.URL), ".pdf") {
		w.markFailed(ctx, a.ID, ingest.StatusSkippedPDF, pdfFailReason)
		logger.Info("skipping pdf article")
		return scraped{}, fmt.Errorf("pdf article %d skipped", a.ID)
	}

	stepCtx, cancel := context.WithTimeout(ctx, w.cfg.ScrapeTimeout)
	defer cancel()

	_, trickyHost := w.tricky[host]
	start := w.clock.Now()

	result, err := ingest.RetryValue(stepCtx, w.sleeper, w.cfg.Retry, "article-scrape",
		func(ctx context.Context) (scraped, error) {
			return w.fetchAndParse(ctx, a, trickyHost)
		})
	if err != nil {
		status := ingest.StatusFetchFailed
		if strings.Contains(strings.ToLower(err.Error()), "render") {
			status = ingest.StatusRenderFailed
		}
		w.markFailed(ctx, a.ID, status, err.Error())
		logger.Warn("scrape failed", zap.Error(err))
		return scraped{}, err
	}

	strategy := "plain"
	if result.usedBrowser {
		strategy = "rendered"
	}
	metrics.FetchDuration.WithLabelValues(strategy).Observe(w.clock.Now().Sub(start).Seconds())

	if err := w.articles.MarkContentFetched(ctx, a.ID, result.usedBrowser); err != nil {
		logger.Error("mark content fetched failed", zap.Error(err))
		return scraped{}, err
	}
	return result, nil
}

// fetchAndParse is one attempt of the two-strategy fetch plus extraction.
func (w *Worker) fetchAndParse(ctx context.Context, a ingest.Article, trickyHost bool) (scraped, error) {
	var (
		body        []byte
		err         error
		usedBrowser bool
	)
	if trickyHost {
		body, err = w.rendered.Fetch(ctx, a.URL)
		usedBrowser = true
	} else {
		body, err = w.plain.Fetch(ctx, a.URL)
		if err != nil {
			jitter := 500*time.Millisecond + time.Duration(rand.Int63n(int64(2500*time.Millisecond)))
			if serr := w.sleeper.Sleep(ctx, "strategy-fallback-jitter", jitter); serr != nil {
				return scraped{}, serr
			}
			body, err = w.rendered.Fetch(ctx, a.URL)
			usedBrowser = true
		}
	}
	if err != nil {
		return scraped{}, err
	}

	parsed, err := w.parser.Parse(body, a.URL)
	if err != nil {
		return scraped{}, err
	}
	return scraped{article: a, parsed: parsed, usedBrowser: usedBrowser}, nil
}

// enrich runs steps 2-4 for one fetched article.
func (w *Worker) enrich(ctx context.Context, item scraped) {
	logger := w.logger.With(zap.Int64("article_id", item.article.ID))

	analysis, err := w.analyze(ctx, item)
	if err != nil {
		w.markFailed(ctx, item.article.ID, ingest.StatusAnalysisFailed, err.Error())
		logger.Warn("analysis failed", zap.Error(err))
		return
	}

	searchText := ingest.BuildSearchText(ingest.SearchTextFromAnalysis(item.parsed.Title, analysis))
	blobKey := w.blobKey(item.article)

	var (
		embedding []float32
		embedErr  error
		uploadErr error
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		embedding, embedErr = ingest.RetryValue(ctx, w.sleeper, w.cfg.Retry, "embedding",
			func(ctx context.Context) ([]float32, error) {
				return w.embedder.Embed(ctx, searchText)
			})
	}()
	go func() {
		defer wg.Done()
		uploadErr = ingest.Retry(ctx, w.sleeper, w.cfg.Retry, "blob-upload",
			func(ctx context.Context) error {
				return w.blobs.Save(ctx, blobKey, []byte(item.parsed.Text))
			})
	}()
	wg.Wait()

	// Neither partial outcome is persisted: the embedding only lands in the
	// final commit, and a failed upload forfeits it.
	if embedErr != nil {
		w.markFailed(ctx, item.article.ID, ingest.StatusEmbeddingFailed, embedErr.Error())
		logger.Warn("embedding failed", zap.Error(embedErr))
		return
	}
	if uploadErr != nil {
		w.markFailed(ctx, item.article.ID, ingest.StatusBlobUploadFailed, uploadErr.Error())
		logger.Warn("blob upload failed", zap.Error(uploadErr))
		return
	}

	if err := w.articles.CommitProcessed(ctx, item.article.ID, analysis, embedding, blobKey, w.clock.Now()); err != nil {
		logger.Error("commit failed", zap.Error(err))
		return
	}
	metrics.ArticlesFinished.WithLabelValues(string(ingest.StatusProcessed)).Inc()
	logger.Info("article processed",
		zap.String("blob_key", blobKey), zap.Bool("used_browser", item.usedBrowser))
}

// analyze is step 2 with its own timeout per attempt batch.
func (w *Worker) analyze(ctx context.Context, item scraped) (ingest.Analysis, error) {
	stepCtx, cancel := context.WithTimeout(ctx, w.cfg.AnalyzeTimeout)
	defer cancel()
	return ingest.RetryValue(stepCtx, w.sleeper, w.cfg.Retry, "llm-analysis",
		func(ctx context.Context) (ingest.Analysis, error) {
			return w.analyzer.Analyze(ctx, item.parsed.Title, item.parsed.Text)
		})
}

// blobKey derives the storage key from the publish date (UTC), falling back
// to the current instant.
func (w *Worker) blobKey(a ingest.Article) string {
	t := w.clock.Now()
	if a.PublishDate != nil {
		t = a.PublishDate.UTC()
	}
	return fmt.Sprintf("%d/%d/%d/%d.txt", t.Year(), int(t.Month()), t.Day(), a.ID)
}

func (w *Worker) markFailed(ctx context.Context, id int64, status ingest.ArticleStatus, reason string) {
	if err := w.articles.MarkFailed(ctx, id, status, reason, w.clock.Now()); err != nil {
		w.logger.Error("mark failed status",
			zap.Int64("article_id", id), zap.String("status", string(status)), zap.Error(err))
		return
	}
	metrics.ArticlesFinished.WithLabelValues(string(status)).Inc()
}
