package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Handler обрабатывает сообщение. Ошибка означает nack с возвратом в очередь.
type Handler func(ctx context.Context, msg *Message) error

// ErrPermanent — сообщение нельзя обработать никогда; уходит в DLQ без requeue.
var ErrPermanent = errors.New("permanent message failure")

// Consumer потребляет сообщения очереди с ограниченным параллелизмом.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       Queue
	handler     Handler
	concurrency int
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Concurrency — сколько сообщений обрабатывается одновременно
	// (он же prefetch). Default: 1.
	Concurrency int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Consumer{
		conn:        conn,
		logger:      logger.With("queue", cfg.Queue),
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		concurrency: concurrency,
	}
}

// Start потребляет сообщения до отмены ctx. Переживает reconnect.
func (c *Consumer) Start(ctx context.Context) error {
	reconnected := c.conn.ReconnectNotify()

	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// consumeOnce работает на одном канале до его закрытия.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue),
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consumer started", "concurrency", c.concurrency)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			g.Go(func() error {
				c.handleDelivery(ctx, raw)
				return nil
			})
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &msg); err != nil {
		requeue := !errors.Is(err, ErrPermanent) && ctx.Err() == nil
		c.logger.Error("handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"requeue", requeue,
			"error", err,
		)
		raw.Nack(false, requeue)
		return
	}

	raw.Ack(false)
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return result, nil
}
