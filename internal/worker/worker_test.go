package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

// --- fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, _ string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type terminalMark struct {
	status ingest.ArticleStatus
	reason string
}

type committedRow struct {
	analysis  ingest.Analysis
	embedding []float32
	blobKey   string
}

type fakeArticles struct {
	mu           sync.Mutex
	processable  []ingest.Article
	failed       map[int64]terminalMark
	fetchedFlags map[int64]bool
	committed    map[int64]committedRow
	selectCalls  int
}

func newFakeArticles(processable ...ingest.Article) *fakeArticles {
	return &fakeArticles{
		processable:  processable,
		failed:       map[int64]terminalMark{},
		fetchedFlags: map[int64]bool{},
		committed:    map[int64]committedRow{},
	}
}

func (f *fakeArticles) InsertIgnoreDuplicates(context.Context, []ingest.ArticleInsert) ([]int64, error) {
	return nil, nil
}

func (f *fakeArticles) SelectProcessable(_ context.Context, _ []int64, _ time.Time) ([]ingest.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls++
	return f.processable, nil
}

func (f *fakeArticles) MarkFailed(_ context.Context, id int64, status ingest.ArticleStatus, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = terminalMark{status: status, reason: reason}
	return nil
}

func (f *fakeArticles) MarkContentFetched(_ context.Context, id int64, usedBrowser bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedFlags[id] = usedBrowser
	return nil
}

func (f *fakeArticles) CommitProcessed(_ context.Context, id int64, analysis ingest.Analysis, embedding []float32, blobKey string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed[id] = committedRow{analysis: analysis, embedding: embedding, blobKey: blobKey}
	return nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}}
}

func (f *fakeBlobs) Save(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = append([]byte(nil), data...)
	return nil
}

type countingFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
}

func (f *countingFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeParser struct {
	parsed ingest.ParsedArticle
	err    error
}

func (f *fakeParser) Parse([]byte, string) (ingest.ParsedArticle, error) {
	if f.err != nil {
		return ingest.ParsedArticle{}, f.err
	}
	return f.parsed, nil
}

type fakeAnalyzer struct {
	analysis ingest.Analysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (ingest.Analysis, error) {
	if f.err != nil {
		return ingest.Analysis{}, f.err
	}
	return f.analysis, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// --- harness ---

type harness struct {
	clock    *fakeClock
	articles *fakeArticles
	blobs    *fakeBlobs
	plain    *countingFetcher
	rendered *countingFetcher
	parser   *fakeParser
	analyzer *fakeAnalyzer
	embedder *fakeEmbedder
}

func validAnalysis() ingest.Analysis {
	return ingest.Analysis{
		Language:           "en",
		PrimaryLocation:    "USA",
		Completeness:       ingest.CompletenessComplete,
		ContentQuality:     ingest.QualityOK,
		EventSummaryPoints: []string{"Something happened."},
		ThematicKeywords:   []string{"economy"},
		TopicTags:          []string{"markets"},
		KeyEntities:        []string{"Fed"},
		ContentFocus:       []string{"finance"},
	}
}

func newHarness(articles ...ingest.Article) *harness {
	return &harness{
		clock:    newFakeClock(),
		articles: newFakeArticles(articles...),
		blobs:    newFakeBlobs(),
		plain:    &countingFetcher{body: []byte("<html>plain</html>")},
		rendered: &countingFetcher{body: []byte("<html>rendered</html>")},
		parser:   &fakeParser{parsed: ingest.ParsedArticle{Title: "T", Text: "article body"}},
		analyzer: &fakeAnalyzer{analysis: validAnalysis()},
		embedder: &fakeEmbedder{vec: []float32{0.1, 0.2}},
	}
}

func (h *harness) worker(cfg Config) *Worker {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = ingest.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	}
	if cfg.GlobalCooldown == 0 {
		cfg.GlobalCooldown = time.Millisecond
	}
	if cfg.DomainCooldown == 0 {
		cfg.DomainCooldown = time.Millisecond
	}
	return New(h.articles, h.blobs, h.plain, h.rendered, h.parser, h.analyzer,
		h.embedder, h.clock, h.clock, cfg, zap.NewNop())
}

func pendingArticle(id int64, url string, publish *time.Time) ingest.Article {
	return ingest.Article{
		ID: id, URL: url, Title: "T", PublishDate: publish,
		SourceID: 1, Status: ingest.StatusPendingFetch,
	}
}

// --- tests ---

func TestProcessBatchHappyPath(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(7, "https://example.com/story", &pub))
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{7}))

	row, ok := h.articles.committed[7]
	require.True(t, ok, "article should be committed as PROCESSED")
	require.Equal(t, "2025/6/1/7.txt", row.blobKey)
	require.Equal(t, []float32{0.1, 0.2}, row.embedding)
	require.Equal(t, validAnalysis(), row.analysis)

	stored, ok := h.blobs.data["2025/6/1/7.txt"]
	require.True(t, ok)
	require.Equal(t, "article body", string(stored))

	require.Equal(t, 1, h.plain.callCount())
	require.Zero(t, h.rendered.callCount())
	require.False(t, h.articles.fetchedFlags[7], "plain fetch does not set used_browser")
	require.Empty(t, h.articles.failed)
}

func TestProcessBatchSkipsEmptySelection(t *testing.T) {
	h := newHarness() // nothing processable
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{1, 2, 3}))
	require.Zero(t, h.plain.callCount())
	require.Zero(t, h.rendered.callCount())
	require.Empty(t, h.articles.committed)
}

func TestPDFIsSkippedCaseInsensitive(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(9, "https://example.com/report.PDF", &pub))
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{9}))

	mark := h.articles.failed[9]
	require.Equal(t, ingest.StatusSkippedPDF, mark.status)
	require.Equal(t, pdfFailReason, mark.reason)
	require.Zero(t, h.plain.callCount())
	require.Zero(t, h.rendered.callCount())
	require.Empty(t, h.articles.committed)
}

func TestTrickyDomainUsesRenderedOnly(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(3, "https://www.reuters.com/world/x", &pub))
	w := h.worker(Config{TrickyDomains: []string{"www.reuters.com"}})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{3}))

	require.Zero(t, h.plain.callCount(), "plain fetch is never attempted for tricky hosts")
	require.Equal(t, 1, h.rendered.callCount())
	require.True(t, h.articles.fetchedFlags[3], "rendered fetch sets used_browser")
	require.Contains(t, h.articles.committed, int64(3))
}

func TestPlainFailureFallsBackToRendered(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(4, "https://example.com/story", &pub))
	h.plain.err = fmt.Errorf("%w: status 403", ingest.ErrFetch)
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{4}))

	require.Equal(t, 1, h.plain.callCount())
	require.Equal(t, 1, h.rendered.callCount())
	require.True(t, h.articles.fetchedFlags[4])
	require.Contains(t, h.articles.committed, int64(4))
}

func TestScrapeFailureMapsToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ingest.ArticleStatus
	}{
		{"render failure", fmt.Errorf("%w: browser pool exhausted", ingest.ErrRender), ingest.StatusRenderFailed},
		{"fetch failure", errors.New("dial tcp: connection refused"), ingest.StatusFetchFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
			h := newHarness(pendingArticle(5, "https://example.com/story", &pub))
			h.plain.err = tc.err
			h.rendered.err = tc.err
			w := h.worker(Config{})

			require.NoError(t, w.ProcessBatch(context.Background(), []int64{5}))

			mark := h.articles.failed[5]
			require.Equal(t, tc.want, mark.status)
			require.NotEmpty(t, mark.reason)
			require.Empty(t, h.articles.committed)
		})
	}
}

func TestAnalysisFailureIsTerminal(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(6, "https://example.com/story", &pub))
	h.analyzer.err = errors.New("rate limited")
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{6}))

	mark := h.articles.failed[6]
	require.Equal(t, ingest.StatusAnalysisFailed, mark.status)
	require.Contains(t, mark.reason, "rate limited")
	require.Empty(t, h.articles.committed, "no commit after analysis failure")
	require.Empty(t, h.blobs.data, "blob is not written after analysis failure")
}

func TestUploadFailureForfeitsEmbedding(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(8, "https://example.com/story", &pub))
	h.blobs.err = errors.New("bucket unavailable")
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{8}))

	mark := h.articles.failed[8]
	require.Equal(t, ingest.StatusBlobUploadFailed, mark.status)
	require.Empty(t, h.articles.committed, "embedding must not be persisted when upload fails")
}

func TestEmbeddingFailureIsTerminal(t *testing.T) {
	pub := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(pendingArticle(10, "https://example.com/story", &pub))
	h.embedder.err = errors.New("service overloaded")
	w := h.worker(Config{})

	require.NoError(t, w.ProcessBatch(context.Background(), []int64{10}))

	mark := h.articles.failed[10]
	require.Equal(t, ingest.StatusEmbeddingFailed, mark.status)
	require.Empty(t, h.articles.committed)
}

func TestBlobKeyFallsBackToNow(t *testing.T) {
	h := newHarness()
	w := h.worker(Config{})

	key := w.blobKey(ingest.Article{ID: 12})
	require.Equal(t, "2025/6/1/12.txt", key, "nil publish date uses the current instant")

	pub := time.Date(2024, 11, 30, 23, 0, 0, 0, time.UTC)
	key = w.blobKey(ingest.Article{ID: 12, PublishDate: &pub})
	require.Equal(t, "2024/11/30/12.txt", key)
}
