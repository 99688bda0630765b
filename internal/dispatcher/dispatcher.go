// Package dispatcher bridges bus deliveries to enrichment jobs and owns the
// ack/nack and dead-letter decisions.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/bus"
	"github.com/meridian-news/ingest/internal/ingest"
)

// JobRunner starts one enrichment job over a flattened id list.
type JobRunner interface {
	ProcessBatch(ctx context.Context, ids []int64) error
}

// Config tunes redelivery behavior.
type Config struct {
	// MaxDeliveryAttempts routes a message to the dead-letter sink once
	// exceeded.
	MaxDeliveryAttempts int
	// RetryDelay spaces redeliveries after a failed job start.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxDeliveryAttempts <= 0 {
		c.MaxDeliveryAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
}

// Dispatcher consumes the bus and fans batches into the worker.
type Dispatcher struct {
	consumer bus.Consumer
	dlq      bus.DeadLetterer
	runner   JobRunner
	sleeper  ingest.Sleeper
	logger   *zap.Logger
	cfg      Config
}

// New creates a Dispatcher.
func New(consumer bus.Consumer, dlq bus.DeadLetterer, runner JobRunner, sleeper ingest.Sleeper, cfg Config, logger *zap.Logger) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		consumer: consumer,
		dlq:      dlq,
		runner:   runner,
		sleeper:  sleeper,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run blocks, handling deliveries until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.consumer.Receive(ctx, d.handle); err != nil {
		return fmt.Errorf("consume bus: %w", err)
	}
	return nil
}

// handle decides the fate of one delivery. Once the job starts successfully
// the message is acked; the job owns durability from there.
func (d *Dispatcher) handle(ctx context.Context, m *bus.Message) {
	if m.DeliveryAttempt > d.cfg.MaxDeliveryAttempts {
		d.deadLetter(ctx, m, "delivery attempts exhausted")
		return
	}

	var batch ingest.BatchMessage
	if err := json.Unmarshal(m.Data, &batch); err != nil {
		// A payload that never decodes will never succeed; divert it.
		d.deadLetter(ctx, m, fmt.Sprintf("undecodable payload: %v", err))
		return
	}
	if len(batch.ArticleIDs) == 0 {
		d.logger.Debug("acking empty batch")
		m.Ack()
		return
	}

	if err := d.runner.ProcessBatch(ctx, batch.ArticleIDs); err != nil {
		d.logger.Warn("enrichment job failed, redelivering batch",
			zap.Int("articles", len(batch.ArticleIDs)),
			zap.Int("attempt", m.DeliveryAttempt),
			zap.Error(err))
		if serr := d.sleeper.Sleep(ctx, "batch-retry-delay", d.cfg.RetryDelay); serr != nil {
			d.logger.Debug("retry delay interrupted", zap.Error(serr))
		}
		m.Nack()
		return
	}
	m.Ack()
}

func (d *Dispatcher) deadLetter(ctx context.Context, m *bus.Message, reason string) {
	d.logger.Error("routing message to dead-letter sink",
		zap.Int("attempt", m.DeliveryAttempt), zap.String("reason", reason))
	if err := d.dlq.PublishDeadLetter(ctx, m.Data); err != nil {
		d.logger.Error("dead-letter publish failed, nacking for another pass", zap.Error(err))
		m.Nack()
		return
	}
	m.Ack()
}
