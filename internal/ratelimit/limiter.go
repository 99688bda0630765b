// Package ratelimit provides the per-domain politeness limiter used by the
// enrichment scrape step.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
	"github.com/meridian-news/ingest/internal/metrics"
)

// Sleep reasons passed to the injected Sleeper so a durable orchestrator can
// checkpoint each wait distinctly.
const (
	ReasonGlobalCooldown = "global-cooldown"
	ReasonDomainCooldown = "domain-cooldown"
)

// minDomainWait floors the wait when no host is ready yet.
const minDomainWait = 500 * time.Millisecond

// Config controls batch scheduling.
type Config struct {
	MaxConcurrent  int
	GlobalCooldown time.Duration
	DomainCooldown time.Duration
}

// Item is one schedulable unit of work.
type Item struct {
	ID  int64
	URL string
}

// Limiter schedules work over a batch of URLs, enforcing a per-host cooldown
// and a global concurrency cap. The host map is mutated only by the goroutine
// running ProcessBatch; a Limiter must not be shared across unrelated batches
// concurrently.
type Limiter struct {
	cfg        Config
	clock      ingest.Clock
	sleeper    ingest.Sleeper
	logger     *zap.Logger
	lastAccess map[string]time.Time
}

// New creates a Limiter.
func New(cfg Config, clock ingest.Clock, sleeper ingest.Sleeper, logger *zap.Logger) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Limiter{
		cfg:        cfg,
		clock:      clock,
		sleeper:    sleeper,
		logger:     logger,
		lastAccess: make(map[string]time.Time),
	}
}

type scheduled struct {
	item Item
	host string
}

// ProcessBatch runs work over every item whose URL parses, honoring the
// configured cooldowns. Items with invalid URLs are dropped silently; work
// errors discard that item's result. Fulfilled results are returned in
// completion order.
func ProcessBatch[T any](
	ctx context.Context,
	l *Limiter,
	items []Item,
	work func(ctx context.Context, item Item, host string) (T, error),
) ([]T, error) {
	remaining := make([]scheduled, 0, len(items))
	for _, it := range items {
		host := ingest.HostOf(it.URL)
		if host == "" {
			l.logger.Debug("dropping item with invalid url",
				zap.Int64("id", it.ID), zap.String("url", it.URL))
			continue
		}
		remaining = append(remaining, scheduled{item: it, host: host})
	}

	var results []T
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		now := l.clock.Now()
		ready, rest := l.pick(now, remaining)
		if len(ready) == 0 {
			wait := l.minWait(now, remaining)
			metrics.LimiterWaits.Observe(wait.Seconds())
			if err := l.sleeper.Sleep(ctx, ReasonDomainCooldown, wait); err != nil {
				return results, err
			}
			continue
		}

		results = append(results, runParallel(ctx, l.logger, ready, work)...)
		remaining = rest

		if len(remaining) > 0 {
			metrics.LimiterWaits.Observe(l.cfg.GlobalCooldown.Seconds())
			if err := l.sleeper.Sleep(ctx, ReasonGlobalCooldown, l.cfg.GlobalCooldown); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// pick selects up to MaxConcurrent items whose host cooled down, at most one
// item per host per iteration, and stamps their last access.
func (l *Limiter) pick(now time.Time, remaining []scheduled) (ready, rest []scheduled) {
	taken := make(map[string]struct{})
	for _, s := range remaining {
		if len(ready) < l.cfg.MaxConcurrent {
			if _, dup := taken[s.host]; !dup && l.cooledDown(now, s.host) {
				taken[s.host] = struct{}{}
				l.lastAccess[s.host] = now
				ready = append(ready, s)
				continue
			}
		}
		rest = append(rest, s)
	}
	return ready, rest
}

func (l *Limiter) cooledDown(now time.Time, host string) bool {
	last, seen := l.lastAccess[host]
	return !seen || now.Sub(last) >= l.cfg.DomainCooldown
}

// minWait computes the smallest positive remaining cooldown across the hosts
// of the remaining items, floored at minDomainWait.
func (l *Limiter) minWait(now time.Time, remaining []scheduled) time.Duration {
	var min time.Duration
	for _, s := range remaining {
		last, seen := l.lastAccess[s.host]
		if !seen {
			continue
		}
		left := l.cfg.DomainCooldown - now.Sub(last)
		if left > 0 && (min == 0 || left < min) {
			min = left
		}
	}
	if min < minDomainWait {
		min = minDomainWait
	}
	return min
}

func runParallel[T any](
	ctx context.Context,
	logger *zap.Logger,
	batch []scheduled,
	work func(ctx context.Context, item Item, host string) (T, error),
) []T {
	type outcome struct {
		value T
		err   error
		item  Item
	}
	ch := make(chan outcome, len(batch))
	for _, s := range batch {
		go func(s scheduled) {
			v, err := work(ctx, s.item, s.host)
			ch <- outcome{value: v, err: err, item: s.item}
		}(s)
	}

	results := make([]T, 0, len(batch))
	for range batch {
		out := <-ch
		if out.err != nil {
			logger.Debug("batch item rejected",
				zap.Int64("id", out.item.ID), zap.Error(out.err))
			continue
		}
		results = append(results, out.value)
	}
	return results
}
