package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Chatplane/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeJobEnqueued — в очередь поставлен новый job.
const MessageTypeJobEnqueued MessageType = "job.enqueued"

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// JobEnqueuedPayload — ссылка на job в таблице jobs.
type JobEnqueuedPayload struct {
	JobID uuid.UUID      `json:"job_id"`
	Kind  domain.JobKind `json:"kind"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJob уведомляет worker'ы очереди о новом job'е.
func (p *Publisher) PublishJob(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(JobEnqueuedPayload{JobID: job.ID, Kind: job.Kind})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobEnqueued,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeJobs, RoutingKeyFor(job.Queue), msg)
}
