// Package mq provides a RabbitMQ client with automatic reconnection, publisher
// confirms and optional Prometheus metrics.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"adsbstats.dev/collector/pkg/metrics"
)

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5

	defaultContentType = "application/octet-stream"
)

var (
	// ErrNotConnected is returned while no channel is ready.
	ErrNotConnected = errors.New("not connected to a server")
	// ErrAlreadyClosed is returned by Close when nothing is left to close.
	ErrAlreadyClosed = errors.New("already closed: not connected to the server")
	// ErrShutdown is returned by Push when the client is closed mid-retry.
	ErrShutdown = errors.New("client is shutting down")
	// ErrMaxRetriesExceeded is returned by Push after maxRetryAttempts.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// Config configures a Client.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.MQMetrics // Optional

	URL   string
	Queue string

	// ContentType is set on every published message.
	ContentType string

	// Durable declares the queue as surviving broker restarts.
	Durable bool
}

// Client is a RabbitMQ client bound to one queue. It reconnects in the
// background and publishes with confirms.
type Client struct {
	m               sync.Mutex
	closeOnce       sync.Once
	logger          *slog.Logger
	metrics         *metrics.MQMetrics
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	queue           string
	contentType     string
	durable         bool
	isReady         bool
}

// New validates cfg and starts connecting in the background. It never blocks
// on the broker; operations fail with ErrNotConnected until a channel is up.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("mq config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("broker url cannot be empty")
	}
	if cfg.Queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	client := &Client{
		logger:      cfg.Logger.With("queue", cfg.Queue),
		metrics:     cfg.Metrics,
		done:        make(chan struct{}),
		queue:       cfg.Queue,
		contentType: contentType,
		durable:     cfg.Durable,
	}
	go client.handleReconnect(cfg.URL)
	return client, nil
}

// handleReconnect waits for a connection error and reconnects until Close.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Debug("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Warn("failed to connect, retrying", "error", err, "delay", reconnectDelay)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		client.setConnectionStatus(0)
		return nil, err
	}

	client.m.Lock()
	client.connection = conn
	client.notifyConnClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(client.notifyConnClose)
	client.m.Unlock()

	client.logger.Info("connected to broker")
	client.setConnectionStatus(1)
	return conn, nil
}

// handleReInit waits for a channel error and re-initializes the channel.
// It returns true when the client is shutting down.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.logger.Warn("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-initializing")
		}
	}
}

// init opens a confirm-mode channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	_, err = ch.QueueDeclare(
		client.queue,
		client.durable,
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,
	)
	if err != nil {
		return err
	}

	client.m.Lock()
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(client.notifyChanClose)
	ch.NotifyPublish(client.notifyConfirm)
	client.isReady = true
	client.m.Unlock()

	client.logger.Info("queue declared", "durable", client.durable)
	return nil
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

// Ready reports whether a channel is currently open.
func (client *Client) Ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

func (client *Client) setConnectionStatus(v float64) {
	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(v)
	}
}

func (client *Client) countFailure(reason string) {
	if client.metrics != nil {
		client.metrics.PushFailures.WithLabelValues(client.queue, reason).Inc()
	}
}

// wait sleeps for the current backoff and doubles it, capped at maxBackoff.
func (client *Client) wait(ctx context.Context, backoff *time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return ErrShutdown
	case <-time.After(*backoff):
	}

	*backoff *= backoffMultiplier
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
	return nil
}

// Push publishes data and waits for the broker confirmation. While the client
// is disconnected, or the broker nacks, it retries with exponential backoff
// and gives up with ErrMaxRetriesExceeded after maxRetryAttempts.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queue))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		if attempt >= maxRetryAttempts {
			client.logger.Error("giving up on push", "attempts", attempt)
			client.countFailure("max_retries_exceeded")
			return ErrMaxRetriesExceeded
		}

		if !client.Ready() {
			client.logger.Debug("not connected, waiting for reconnection", "backoff", backoff, "attempt", attempt)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
			continue
		}

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Warn("push failed, retrying", "error", err, "backoff", backoff, "attempt", attempt)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
			continue
		}

		client.m.Lock()
		confirms := client.notifyConfirm
		client.m.Unlock()

		select {
		case <-ctx.Done():
			client.countFailure("context_canceled")
			return ctx.Err()
		case confirm := <-confirms:
			if confirm.Ack {
				if client.metrics != nil {
					client.metrics.MessagesPushed.WithLabelValues(client.queue).Inc()
				}
				client.logger.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag, "attempt", attempt)
				return nil
			}

			client.logger.Warn("push not acknowledged, retrying", "delivery_tag", confirm.DeliveryTag)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
		}
	}
}

// UnsafePush publishes without waiting for a confirmation. It only fails when
// no channel is ready or the publish itself errors.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return ErrNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	deliveryMode := amqp.Transient
	if client.durable {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		"",           // Exchange
		client.queue, // Routing key
		false,        // Mandatory
		false,        // Immediate
		amqp.Publishing{
			ContentType:  client.contentType,
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
}

// Consume streams deliveries from the queue with a prefetch of one.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return nil, ErrNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return ch.Consume(
		client.queue,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,
	)
}

// Close stops reconnection and closes the channel and connection. Closing a
// client that never connected stops the reconnect loop and returns
// ErrAlreadyClosed.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return ErrAlreadyClosed
	}
	client.isReady = false
	client.setConnectionStatus(0)

	return errors.Join(client.channel.Close(), client.connection.Close())
}
