package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
)

// PubSubConfig names the GCP resources the provider binds to.
type PubSubConfig struct {
	ProjectID       string
	TopicID         string
	SubscriptionID  string
	DeadLetterTopic string
}

// PubSub implements ingest.Publisher, Consumer, and DeadLetterer on GCP
// Pub/Sub. Authentication uses Application Default Credentials.
type PubSub struct {
	client   *pubsub.Client
	topic    *pubsub.Topic
	sub      *pubsub.Subscription
	dlqTopic *pubsub.Topic
	logger   *zap.Logger
}

// NewPubSub creates the client and verifies the topic exists, failing fast on
// misconfiguration.
func NewPubSub(ctx context.Context, cfg PubSubConfig, logger *zap.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	p := &PubSub{
		client: client,
		topic:  topic,
		logger: logger,
	}
	if cfg.SubscriptionID != "" {
		p.sub = client.Subscription(cfg.SubscriptionID)
	}
	if cfg.DeadLetterTopic != "" {
		p.dlqTopic = client.Topic(cfg.DeadLetterTopic)
	}
	return p, nil
}

// PublishArticles splits ids into sub-batches and publishes one message per
// batch, waiting for server acknowledgement of each.
func (p *PubSub) PublishArticles(ctx context.Context, ids []int64) error {
	for _, batch := range ChunkIDs(ids, ingest.PublishBatchSize) {
		data, err := json.Marshal(ingest.BatchMessage{ArticleIDs: batch})
		if err != nil {
			return fmt.Errorf("marshal batch message: %w", err)
		}
		result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish batch of %d articles: %w", len(batch), err)
		}
		p.logger.Debug("published article batch", zap.Int("count", len(batch)))
	}
	return nil
}

// Receive blocks, streaming deliveries to the handler until ctx finishes.
func (p *PubSub) Receive(ctx context.Context, handler func(ctx context.Context, m *Message)) error {
	if p.sub == nil {
		return fmt.Errorf("pubsub subscription not configured")
	}
	err := p.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		attempt := 1
		if m.DeliveryAttempt != nil {
			attempt = *m.DeliveryAttempt
		}
		handler(ctx, NewMessage(m.Data, attempt, m.Ack, m.Nack))
	})
	if err != nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// PublishDeadLetter forwards a poisoned payload to the dead-letter topic.
func (p *PubSub) PublishDeadLetter(ctx context.Context, data []byte) error {
	if p.dlqTopic == nil {
		return fmt.Errorf("dead-letter topic not configured")
	}
	result := p.dlqTopic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// Close flushes publishers and closes the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if p.dlqTopic != nil {
		p.dlqTopic.Stop()
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// ChunkIDs splits ids into slices of at most size elements, preserving order.
func ChunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
