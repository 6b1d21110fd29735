package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Subscriber читает события из Redis.
type Subscriber struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSubscriber создаёт Subscriber.
func NewSubscriber(client *redis.Client, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, logger: logger}
}

// Subscribe подписывается на топики. Канал закрывается при отмене ctx.
// Нечитаемые конверты логируются и пропускаются.
func (s *Subscriber) Subscribe(ctx context.Context, topics ...domain.Topic) (<-chan Envelope, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = string(t)
	}

	pubsub := s.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan Envelope, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					s.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				if env.Topic == "" {
					env.Topic = domain.Topic(msg.Channel)
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Info("subscribed to events", "topics", channels)
	return out, nil
}
