// Package mock provides an in-memory mq.ClientInterface for tests.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"adsbstats.dev/collector/pkg/mq"
)

// Client records published messages and returns configured errors.
type Client struct {
	mu sync.Mutex

	// PushFunc overrides Push when set.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is returned by Push when PushFunc is nil.
	PushError error
	// UnsafePushError is returned by UnsafePush.
	UnsafePushError error
	// Deliveries is returned by Consume.
	Deliveries chan amqp.Delivery
	// ConsumeError is returned by Consume.
	ConsumeError error
	// CloseError is returned by Close.
	CloseError error

	pushed     [][]byte
	closeCalls int
}

// NewClient creates a mock that accepts every message.
func NewClient() *Client {
	return &Client{Deliveries: make(chan amqp.Delivery, 16)}
}

// Push implements mq.Publisher. Messages are recorded only when accepted.
func (c *Client) Push(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.PushError
	if c.PushFunc != nil {
		err = c.PushFunc(ctx, data)
	}
	if err == nil {
		c.pushed = append(c.pushed, append([]byte(nil), data...))
	}
	return err
}

// UnsafePush implements mq.Publisher.
func (c *Client) UnsafePush(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.UnsafePushError != nil {
		return c.UnsafePushError
	}
	c.pushed = append(c.pushed, append([]byte(nil), data...))
	return nil
}

// Consume implements mq.ClientInterface.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	if c.ConsumeError != nil {
		return nil, c.ConsumeError
	}
	return c.Deliveries, nil
}

// Close implements mq.Publisher.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return c.CloseError
}

// Pushed returns a copy of every accepted message.
func (c *Client) Pushed() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.pushed...)
}

// CloseCalls returns how many times Close was called.
func (c *Client) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

var _ mq.ClientInterface = (*Client)(nil)
