package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

// idlePoll bounds how long a runner waits before re-reading its alarm when no
// alarm is pending.
const idlePoll = time.Minute

// Registry owns the fleet of scraper instances and their runner goroutines.
type Registry struct {
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	runners map[uuid.UUID]*runner
	wg      sync.WaitGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		logger:  deps.Logger,
		runners: make(map[uuid.UUID]*runner),
	}
}

type runner struct {
	scraper *Scraper
	poke    chan struct{}
	cancel  context.CancelFunc
}

// Resume spawns runners for every source that already carries an initialized
// timestamp, picking their schedules back up from the persisted alarms.
func (r *Registry) Resume(ctx context.Context) error {
	sources, err := r.deps.Sources.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	for _, src := range sources {
		if src.DoInitializedAt == nil {
			continue
		}
		r.spawn(ctx, src.URL)
	}
	return nil
}

// Initialize creates (or re-uses) the instance for a source and runs its
// initialization path. Safe to call repeatedly for the same URL.
func (r *Registry) Initialize(ctx context.Context, source ingest.Source) error {
	run := r.spawn(ctx, source.URL)
	if err := run.scraper.Initialize(ctx, source.ID); err != nil {
		return err
	}
	run.wake()
	return nil
}

// Trigger arms an immediate tick for the source URL's instance.
func (r *Registry) Trigger(ctx context.Context, sourceURL string) error {
	run, ok := r.get(ingest.ScraperID(sourceURL))
	if !ok {
		return fmt.Errorf("no scraper instance for %s", sourceURL)
	}
	if err := run.scraper.Trigger(ctx); err != nil {
		return err
	}
	run.wake()
	return nil
}

// Status reports one instance's state.
func (r *Registry) Status(ctx context.Context, sourceURL string) (Status, error) {
	run, ok := r.get(ingest.ScraperID(sourceURL))
	if !ok {
		return Status{State: StateUninitialized}, nil
	}
	return run.scraper.Status(ctx)
}

// Destroy stops the runner and removes all persisted state for the source.
func (r *Registry) Destroy(ctx context.Context, source ingest.Source) error {
	id := ingest.ScraperID(source.URL)
	r.mu.Lock()
	run, ok := r.runners[id]
	if ok {
		delete(r.runners, id)
	}
	r.mu.Unlock()

	if ok {
		run.cancel()
		return run.scraper.Destroy(ctx, source.ID)
	}
	// No live runner; still clear persisted state so re-initialization is clean.
	return New(source.URL, r.deps).Destroy(ctx, source.ID)
}

// Wait blocks until every runner goroutine has exited.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) get(id uuid.UUID) (*runner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runners[id]
	return run, ok
}

// spawn returns the existing runner for a URL or starts a new one.
func (r *Registry) spawn(ctx context.Context, sourceURL string) *runner {
	id := ingest.ScraperID(sourceURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runners[id]; ok {
		return run
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &runner{
		scraper: New(sourceURL, r.deps),
		poke:    make(chan struct{}, 1),
		cancel:  cancel,
	}
	r.runners[id] = run

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(runCtx, run)
	}()
	return run
}

// loop drives one instance: sleep until its pending alarm, tick, repeat. A
// poke re-reads the alarm immediately (used by Trigger and Initialize).
func (r *Registry) loop(ctx context.Context, run *runner) {
	for {
		wait := idlePoll
		at, ok, err := r.deps.State.GetAlarm(ctx, run.scraper.ID())
		if err != nil {
			r.logger.Warn("alarm read failed", zap.Error(err),
				zap.String("scraper_id", run.scraper.ID().String()))
		} else if ok {
			wait = at.Sub(r.deps.Clock.Now())
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-run.poke:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if !ok {
			continue
		}
		if err := run.scraper.Tick(ctx); err != nil {
			r.logger.Warn("tick failed", zap.Error(err),
				zap.String("scraper_id", run.scraper.ID().String()))
		}
	}
}

func (run *runner) wake() {
	select {
	case run.poke <- struct{}{}:
	default:
	}
}
