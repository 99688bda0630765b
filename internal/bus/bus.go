// Package bus links the scheduler to the enrichment worker with at-least-once
// message delivery. Providers: GCP Pub/Sub and an in-memory twin for local
// runs and tests.
package bus

import (
	"context"
)

// Message is one delivery handed to the dispatcher. Exactly one of Ack or
// Nack must be called; duplicates are tolerated downstream.
type Message struct {
	Data            []byte
	DeliveryAttempt int

	ackFn  func()
	nackFn func()
}

// Ack confirms the delivery.
func (m *Message) Ack() {
	if m.ackFn != nil {
		m.ackFn()
	}
}

// Nack requests redelivery.
func (m *Message) Nack() {
	if m.nackFn != nil {
		m.nackFn()
	}
}

// NewMessage builds a Message with explicit ack hooks. Exposed for provider
// implementations and dispatcher tests.
func NewMessage(data []byte, attempt int, ack, nack func()) *Message {
	return &Message{Data: data, DeliveryAttempt: attempt, ackFn: ack, nackFn: nack}
}

// Consumer streams deliveries to a handler until the context finishes.
type Consumer interface {
	Receive(ctx context.Context, handler func(ctx context.Context, m *Message)) error
}

// DeadLetterer diverts a poisoned message out of the delivery loop.
type DeadLetterer interface {
	PublishDeadLetter(ctx context.Context, data []byte) error
}
