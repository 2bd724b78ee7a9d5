// Package eventbus defines the message consumer contract used by the
// upload notification worker.
package eventbus

import (
	"context"
	"time"
)

// Consumer receives messages from a queue and hands them to a handler.
type Consumer interface {
	// Consume blocks, handling messages one at a time, until ctx is
	// cancelled. A message is acknowledged (removed from the queue) only
	// when the handler returns nil; otherwise it is redelivered later.
	Consume(ctx context.Context, handler MessageHandler) error

	// HealthCheck verifies connectivity to the queue.
	HealthCheck(ctx context.Context) error

	// Close stops the consumer. Consume returns once closed.
	Close() error
}

// Message is a consumed queue message.
type Message struct {
	// ID is the broker-assigned message identifier.
	ID string

	// Value is the raw message body.
	Value []byte

	// Attributes holds the message attributes sent with the message.
	Attributes map[string]string

	// ReceiveCount is how many times the message has been delivered, including this one.
	ReceiveCount int

	// ReceivedAt is when this delivery was received.
	ReceivedAt time.Time
}

// MessageHandler processes one message. Returning nil acknowledges it.
type MessageHandler func(ctx context.Context, msg *Message) error
