package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes messages onto a single queue.
type Publisher interface {
	// Push publishes and blocks until the broker confirms, retrying with
	// backoff while the client reconnects.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes without waiting for a confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Close shuts down the channel and connection.
	Close() error
}

// ClientInterface is the full queue client: publishing plus consumption.
type ClientInterface interface {
	Publisher

	// Consume streams queue deliveries. Every delivery must be acked or
	// nacked by the caller.
	Consume() (<-chan amqp.Delivery, error)
}

var _ ClientInterface = (*Client)(nil)
