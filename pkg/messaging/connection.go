package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrNoChannel = errors.New("no amqp channel available")

const maxReconnectDelay = 30 * time.Second

// Connection is an AMQP connection that reconnects with exponential backoff
// whenever the broker drops it.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}
}

func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:      url,
		logger:   logger.With("module", "amqp"),
		closedCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("open channel: %w", err)
	}

	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("Connected to RabbitMQ")

	return nil
}

// watch replaces the channel when the broker closes it and redials when the
// connection drops.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()

			return
		}

		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-connClosed:
			if err != nil {
				c.logger.Warn("Connection closed", "error", err)
			}

			c.reconnect()
		case err := <-channelClosed:
			if err != nil {
				c.logger.Warn("Channel closed", "error", err)
			}

			c.reopen()
		}
	}
}

// reopen opens a new channel on the current connection, or redials when the
// connection is gone too.
func (c *Connection) reopen() {
	select {
	case <-c.closedCh:
		return
	default:
	}

	c.mu.Lock()

	if c.conn != nil && !c.conn.IsClosed() {
		ch, err := c.conn.Channel()
		if err == nil {
			c.channel = ch
			c.mu.Unlock()

			c.logger.Info("Reopened AMQP channel")

			return
		}

		c.logger.Warn("Reopen channel failed", "error", err)
	}

	c.mu.Unlock()

	c.reconnect()
}

func (c *Connection) reconnect() {
	delay := time.Second

	for {
		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("Reconnect failed", "error", err, "retry_in", delay)
			delay = min(delay*2, maxReconnectDelay)

			continue
		}

		c.logger.Info("Reconnected to RabbitMQ")

		return
	}
}

// WithChannel runs fn with the current channel.
func (c *Connection) WithChannel(fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	return fn(ch)
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Connection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	return errors.Join(errs...)
}
