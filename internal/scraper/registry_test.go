package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

func newRegistryHarness(t *testing.T) (*Registry, *harness) {
	t.Helper()
	h := newHarness(t)
	reg := NewRegistry(Deps{
		Sources:   h.sources,
		Articles:  h.articles,
		State:     h.state,
		Publisher: h.publisher,
		Fetcher:   h.fetcher,
		Parser:    h.parser,
		Clock:     h.clock,
		Sleeper:   h.clock,
		Logger:    zap.NewNop(),
	})
	return reg, h
}

func TestRegistryInitializeAndTriggerRunsTick(t *testing.T) {
	reg, h := newRegistryHarness(t)
	h.parser.entries = []ingest.FeedEntry{{Title: "T", Link: "https://example.com/t"}}
	h.articles.returnIDs = []int64{31}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := ingest.Source{ID: 4, URL: testSourceURL, ScrapeFrequency: 1}
	require.NoError(t, reg.Initialize(ctx, src))
	require.NoError(t, reg.Trigger(ctx, testSourceURL))

	require.Eventually(t, func() bool {
		h.publisher.mu.Lock()
		defer h.publisher.mu.Unlock()
		return len(h.publisher.batches) == 1
	}, 3*time.Second, 10*time.Millisecond, "trigger should force an immediate tick")

	cancel()
	reg.Wait()
}

func TestRegistryInitializeIsIdempotent(t *testing.T) {
	reg, _ := newRegistryHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := ingest.Source{ID: 4, URL: testSourceURL, ScrapeFrequency: 1}
	require.NoError(t, reg.Initialize(ctx, src))
	require.NoError(t, reg.Initialize(ctx, src))

	reg.mu.Lock()
	require.Len(t, reg.runners, 1, "repeated initialize converges on one instance")
	reg.mu.Unlock()

	cancel()
	reg.Wait()
}

func TestRegistryTriggerUnknownSource(t *testing.T) {
	reg, _ := newRegistryHarness(t)
	err := reg.Trigger(context.Background(), "https://unknown.example/rss")
	require.Error(t, err)
}

func TestRegistryDestroyStopsRunner(t *testing.T) {
	reg, h := newRegistryHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := ingest.Source{ID: 4, URL: testSourceURL, ScrapeFrequency: 1}
	require.NoError(t, reg.Initialize(ctx, src))
	require.NoError(t, reg.Destroy(ctx, src))

	_, exists, _ := h.state.GetState(ctx, ingest.ScraperID(testSourceURL))
	require.False(t, exists)

	status, err := reg.Status(ctx, testSourceURL)
	require.NoError(t, err)
	require.Equal(t, StateUninitialized, status.State, "destroyed instances drop out of the registry")

	cancel()
	reg.Wait()
}
