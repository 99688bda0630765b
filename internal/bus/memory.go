package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/meridian-news/ingest/internal/ingest"
)

type memoryDelivery struct {
	data    []byte
	attempt int
}

// Memory is an in-process bus for local development and tests. Nacked
// messages are redelivered with an incremented attempt counter.
type Memory struct {
	mu          sync.Mutex
	ch          chan memoryDelivery
	deadLetters [][]byte
}

// NewMemory creates a Memory bus with the given buffer capacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{ch: make(chan memoryDelivery, capacity)}
}

// PublishArticles enqueues one message per sub-batch of ids.
func (m *Memory) PublishArticles(ctx context.Context, ids []int64) error {
	for _, batch := range ChunkIDs(ids, ingest.PublishBatchSize) {
		data, err := json.Marshal(ingest.BatchMessage{ArticleIDs: batch})
		if err != nil {
			return fmt.Errorf("marshal batch message: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish canceled: %w", ctx.Err())
		case m.ch <- memoryDelivery{data: data, attempt: 1}:
		}
	}
	return nil
}

// Receive delivers messages to the handler until the context finishes.
func (m *Memory) Receive(ctx context.Context, handler func(ctx context.Context, msg *Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-m.ch:
			msg := NewMessage(d.data, d.attempt,
				func() {},
				func() {
					// Redeliver on nack, dropping the message if the buffer
					// is saturated rather than deadlocking the handler.
					select {
					case m.ch <- memoryDelivery{data: d.data, attempt: d.attempt + 1}:
					default:
					}
				})
			handler(ctx, msg)
		}
	}
}

// PublishDeadLetter records the payload for inspection.
func (m *Memory) PublishDeadLetter(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, append([]byte(nil), data...))
	return nil
}

// DeadLetters returns a copy of everything routed to the dead-letter sink.
func (m *Memory) DeadLetters() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.deadLetters))
	copy(out, m.deadLetters)
	return out
}

// Close is a no-op; the channel is garbage collected with the bus.
func (m *Memory) Close() error { return nil }
