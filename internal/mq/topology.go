package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя AMQP очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeJobs Exchange = "chatplane.jobs"
	ExchangeDLQ  Exchange = "chatplane.dlq"

	QueueDLQJobs      Queue      = "dlq.jobs"
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// QueueFor возвращает AMQP очередь preset'а.
func QueueFor(name domain.QueueName) Queue {
	return Queue("jobs." + string(name))
}

// RoutingKeyFor возвращает routing key preset'а в ExchangeJobs.
func RoutingKeyFor(name domain.QueueName) RoutingKey {
	return RoutingKey(name)
}

// QueueDecl — объявление очереди и её привязки.
type QueueDecl struct {
	Name       Queue
	Exchange   Exchange
	RoutingKey RoutingKey
	Args       amqp.Table
}

// Declarations возвращает очереди топологии: по одной на preset плюс DLQ.
func Declarations(queues []domain.QueueName) []QueueDecl {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	decls := make([]QueueDecl, 0, len(queues)+1)
	for _, q := range queues {
		decls = append(decls, QueueDecl{
			Name:       QueueFor(q),
			Exchange:   ExchangeJobs,
			RoutingKey: RoutingKeyFor(q),
			Args:       dlqArgs,
		})
	}

	return append(decls, QueueDecl{
		Name:       QueueDLQJobs,
		Exchange:   ExchangeDLQ,
		RoutingKey: RoutingKeyDLQJobs,
	})
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection, queues []domain.QueueName) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeJobs, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, d := range Declarations(queues) {
			if _, err := ch.QueueDeclare(
				string(d.Name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				d.Args,         // arguments
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", d.Name, err)
			}

			if err := ch.QueueBind(string(d.Name), string(d.RoutingKey), string(d.Exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", d.Name, d.Exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(queues []domain.QueueName) string {
	var b strings.Builder
	b.WriteString("\n  Chatplane RabbitMQ Topology:\n\n")
	fmt.Fprintf(&b, "    %s (direct)\n", ExchangeJobs)
	for i, q := range queues {
		branch := "├──"
		if i == len(queues)-1 {
			branch = "└──"
		}
		fmt.Fprintf(&b, "    %s %s [routing: %s] DLQ: %s\n", branch, QueueFor(q), RoutingKeyFor(q), QueueDLQJobs)
	}
	fmt.Fprintf(&b, "\n    %s (direct)\n", ExchangeDLQ)
	fmt.Fprintf(&b, "    └── %s [routing: %s] manual processing\n", QueueDLQJobs, RoutingKeyDLQJobs)
	return b.String()
}
