package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected — канал недоступен (соединение ещё не восстановлено).
var ErrNotConnected = errors.New("rabbitmq not connected")

const maxReconnectDelay = 30 * time.Second

// Connection — AMQP соединение с автоматическим reconnect.
//
// Канал общий для publisher'а и topology; consumer'ы открывают
// собственные каналы через OpenChannel, чтобы Qos одного не влиял на других.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Подписчики на восстановление соединения
	subsMu sync.Mutex
	subs   []chan struct{}
}

// NewConnection подключается к RabbitMQ и запускает наблюдение за соединением.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:      url,
		logger:   logger.With("component", "rabbitmq"),
		closedCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watch ждёт разрыва соединения и переподключается.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыли во время ожидания.
func (c *Connection) reconnect() bool {
	delay := time.Second

	for {
		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_delay", delay)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		c.notifyReconnect()
		return true
	}
}

func (c *Connection) notifyReconnect() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ReconnectNotify возвращает канал, в который приходит сигнал после
// каждого восстановления соединения. У каждого вызывающего свой канал.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// OpenChannel открывает отдельный канал на текущем соединении.
func (c *Connection) OpenChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

// WithChannel выполняет fn с общим каналом.
func (c *Connection) WithChannel(_ context.Context, fn func(ch *amqp.Channel) error) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	return fn(ch)
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
