// Package metrics defines the Prometheus collectors shared by the scheduler
// and the enrichment worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts scheduler ticks by outcome (ok, feed_error,
	// parse_error, insert_error, publish_error, corrupt_state).
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_source_ticks_total",
			Help: "Total source scraper ticks, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// ArticlesDiscovered counts newly-inserted article rows.
	ArticlesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_articles_discovered_total",
			Help: "Total articles newly discovered from feeds.",
		},
	)

	// ArticlesFinished counts enrichment completions by terminal status.
	ArticlesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_articles_finished_total",
			Help: "Total articles reaching a terminal status, labeled by status.",
		},
		[]string{"status"},
	)

	// FetchDuration observes article scrape latency by strategy.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_fetch_duration_seconds",
			Help:    "Article fetch latency, labeled by strategy (plain, rendered).",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// LimiterWaits observes how long the domain rate limiter slept.
	LimiterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_limiter_wait_seconds",
			Help:    "Sleeps taken by the per-domain politeness limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)
