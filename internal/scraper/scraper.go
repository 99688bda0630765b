// Package scraper maintains one durable state machine per RSS source: each
// instance owns a schedule and periodically runs feed -> diff -> enqueue.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
	"github.com/meridian-news/ingest/internal/metrics"
	"github.com/meridian-news/ingest/internal/store"
)

// State names reported by Status.
const (
	StateUninitialized = "UNINITIALIZED"
	StateScheduled     = "SCHEDULED"
	StateRunning       = "RUNNING"
	StateDestroyed     = "DESTROYED"
)

const (
	// initialTickDelay spaces the first tick after initialization.
	initialTickDelay = 5 * time.Second
	// corruptStateBackoff re-arms far in the future when the persisted state
	// fails validation, preventing tight failure loops.
	corruptStateBackoff = 24 * time.Hour
)

// FeedParser decodes a feed document into validated entries.
type FeedParser interface {
	Parse(data []byte) ([]ingest.FeedEntry, error)
}

// Deps bundles everything a scraper instance needs.
type Deps struct {
	Sources   ingest.SourceStore
	Articles  ingest.ArticleStore
	State     ingest.StateStore
	Publisher ingest.Publisher
	Fetcher   ingest.Fetcher
	Parser    FeedParser
	Clock     ingest.Clock
	Sleeper   ingest.Sleeper
	Logger    *zap.Logger
	// Retry overrides the per-step retry policy; zero value means default.
	Retry ingest.RetryPolicy
}

// Scraper is one per-source instance. Its identity derives from the source
// URL, so repeated initialization converges on the same instance. Ticks for
// one instance are serial; instances run independently.
type Scraper struct {
	id   uuid.UUID
	url  string
	deps Deps

	mu sync.Mutex

	stateMu sync.Mutex
	state   string
}

// New creates a Scraper for a source URL.
func New(sourceURL string, deps Deps) *Scraper {
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = ingest.DefaultRetryPolicy()
	}
	return &Scraper{
		id:    ingest.ScraperID(sourceURL),
		url:   sourceURL,
		deps:  deps,
		state: StateUninitialized,
	}
}

// ID returns the stable instance identity.
func (s *Scraper) ID() uuid.UUID {
	return s.id
}

// tierInterval maps a frequency tier to its tick interval. Unknown tiers are
// coerced to tier 2 with a warning.
func (s *Scraper) tierInterval(freq int) time.Duration {
	switch freq {
	case 1:
		return time.Hour
	case 2:
		return 4 * time.Hour
	case 3:
		return 6 * time.Hour
	case 4:
		return 24 * time.Hour
	default:
		s.deps.Logger.Warn("unknown scrape frequency, coercing to tier 2",
			zap.Int("frequency", freq), zap.String("url", s.url))
		return 4 * time.Hour
	}
}

// Initialize persists the control block and arms the first tick. The source
// is re-verified first: losing a race with deletion is a silent no-op. The
// initialized timestamp lands on the source row only after state is persisted
// and the first tick is armed, so a partially-initialized instance stays
// re-initializable.
func (s *Scraper) Initialize(ctx context.Context, sourceID int64) error {
	src, err := s.deps.Sources.GetSource(ctx, sourceID)
	if errors.Is(err, store.ErrSourceNotFound) {
		s.deps.Logger.Info("source deleted before initialization, skipping",
			zap.Int64("source_id", sourceID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify source %d: %w", sourceID, err)
	}

	state := ingest.SourceState{
		SourceID:        src.ID,
		URL:             src.URL,
		ScrapeFrequency: src.ScrapeFrequency,
	}
	if err := s.deps.State.PutState(ctx, s.id, state); err != nil {
		return fmt.Errorf("persist scraper state: %w", err)
	}

	now := s.deps.Clock.Now()
	if err := s.deps.State.SetAlarm(ctx, s.id, now.Add(initialTickDelay)); err != nil {
		return fmt.Errorf("arm first tick: %w", err)
	}
	if err := s.deps.Sources.SetInitializedAt(ctx, src.ID, &now); err != nil {
		return fmt.Errorf("mark source initialized: %w", err)
	}

	s.setState(StateScheduled)
	s.deps.Logger.Info("source scraper initialized",
		zap.Int64("source_id", src.ID),
		zap.String("url", src.URL),
		zap.Int("frequency", src.ScrapeFrequency))
	return nil
}

// Tick runs one scheduled pass: load state, arm the next tick, fetch and
// parse the feed, insert new articles, publish their ids, and only then
// advance the watermark. The next tick is armed before any fallible work so
// the schedule stays live no matter what fails afterwards.
func (s *Scraper) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(StateRunning)
	defer s.setState(StateScheduled)

	state, exists, err := s.deps.State.GetState(ctx, s.id)
	if err != nil {
		return fmt.Errorf("load scraper state: %w", err)
	}
	if !exists || !state.Valid() {
		metrics.TicksTotal.WithLabelValues("corrupt_state").Inc()
		s.deps.Logger.Error("scraper state invalid, backing off",
			zap.String("scraper_id", s.id.String()), zap.Bool("exists", exists))
		if err := s.deps.State.SetAlarm(ctx, s.id, s.deps.Clock.Now().Add(corruptStateBackoff)); err != nil {
			return fmt.Errorf("arm backoff tick: %w", err)
		}
		return fmt.Errorf("%w: scraper %s", ingest.ErrCorruptState, s.id)
	}

	now := s.deps.Clock.Now()
	if err := s.deps.State.SetAlarm(ctx, s.id, now.Add(s.tierInterval(state.ScrapeFrequency))); err != nil {
		return fmt.Errorf("arm next tick: %w", err)
	}

	logger := s.deps.Logger.With(
		zap.Int64("source_id", state.SourceID), zap.String("url", state.URL))

	body, err := ingest.RetryValue(ctx, s.deps.Sleeper, s.deps.Retry, "feed-fetch",
		func(ctx context.Context) ([]byte, error) {
			return s.deps.Fetcher.Fetch(ctx, state.URL)
		})
	if err != nil {
		metrics.TicksTotal.WithLabelValues("feed_error").Inc()
		logger.Warn("feed fetch failed, will retry next tick", zap.Error(err))
		return fmt.Errorf("fetch feed: %w", err)
	}

	entries, err := ingest.RetryValue(ctx, s.deps.Sleeper, s.deps.Retry, "feed-parse",
		func(context.Context) ([]ingest.FeedEntry, error) {
			return s.deps.Parser.Parse(body)
		})
	if err != nil {
		metrics.TicksTotal.WithLabelValues("parse_error").Inc()
		logger.Warn("feed parse failed, will retry next tick", zap.Error(err))
		return fmt.Errorf("parse feed: %w", err)
	}

	rows := make([]ingest.ArticleInsert, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ingest.ArticleInsert{
			SourceID:    state.SourceID,
			URL:         e.Link,
			Title:       e.Title,
			PublishDate: e.PubDate,
		})
	}

	inserted, err := ingest.RetryValue(ctx, s.deps.Sleeper, s.deps.Retry, "article-insert",
		func(ctx context.Context) ([]int64, error) {
			return s.deps.Articles.InsertIgnoreDuplicates(ctx, rows)
		})
	if err != nil {
		metrics.TicksTotal.WithLabelValues("insert_error").Inc()
		logger.Warn("article insert failed, will retry next tick", zap.Error(err))
		return fmt.Errorf("insert articles: %w", err)
	}

	if len(inserted) > 0 {
		if err := s.deps.Publisher.PublishArticles(ctx, inserted); err != nil {
			// The watermark does not advance, so the next tick re-discovers
			// the same articles and ON CONFLICT keeps the table consistent.
			metrics.TicksTotal.WithLabelValues("publish_error").Inc()
			logger.Error("enqueue failed, articles will be re-discovered", zap.Error(err))
			return fmt.Errorf("publish article batch: %w", err)
		}
		metrics.ArticlesDiscovered.Add(float64(len(inserted)))
	}

	state.LastChecked = &now
	if err := s.deps.State.PutState(ctx, s.id, state); err != nil {
		return fmt.Errorf("advance state watermark: %w", err)
	}
	if err := s.deps.Sources.SetLastChecked(ctx, state.SourceID, now); err != nil {
		return fmt.Errorf("advance source watermark: %w", err)
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	logger.Info("tick complete",
		zap.Int("entries", len(entries)), zap.Int("new_articles", len(inserted)))
	return nil
}

// Trigger arms an immediate tick.
func (s *Scraper) Trigger(ctx context.Context) error {
	if err := s.deps.State.SetAlarm(ctx, s.id, s.deps.Clock.Now()); err != nil {
		return fmt.Errorf("arm immediate tick: %w", err)
	}
	return nil
}

// Status reports the instance state and its next scheduled tick.
type Status struct {
	State      string     `json:"state"`
	NextTickAt *time.Time `json:"nextTickAt"`
}

// Status returns the current state and pending alarm.
func (s *Scraper) Status(ctx context.Context) (Status, error) {
	st := Status{State: s.currentState()}
	at, ok, err := s.deps.State.GetAlarm(ctx, s.id)
	if err != nil {
		return Status{}, fmt.Errorf("load alarm: %w", err)
	}
	if ok {
		st.NextTickAt = &at
	}
	return st, nil
}

// Destroy removes persisted state and releases the source row.
func (s *Scraper) Destroy(ctx context.Context, sourceID int64) error {
	if err := s.deps.State.DeleteState(ctx, s.id); err != nil {
		return fmt.Errorf("delete scraper state: %w", err)
	}
	if err := s.deps.Sources.SetInitializedAt(ctx, sourceID, nil); err != nil {
		return fmt.Errorf("clear source initialized mark: %w", err)
	}
	s.setState(StateDestroyed)
	return nil
}

func (s *Scraper) setState(state string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *Scraper) currentState() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}
