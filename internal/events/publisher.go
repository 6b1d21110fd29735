package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Chatplane/internal/domain"
)

// NewRedisClient создаёт клиент и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// redisPublisher — часть *redis.Client, нужная Publisher'у.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher публикует события в Redis.
type Publisher struct {
	client redisPublisher
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(client redisPublisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, now: time.Now, logger: logger}
}

// Publish упаковывает data в Envelope и публикует в топик.
func (p *Publisher) Publish(ctx context.Context, topic domain.Topic, event domain.RealtimeEvent, orgID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	env := Envelope{
		ID:             uuid.New().String(),
		Topic:          topic,
		Event:          event,
		OrganizationID: orgID,
		Data:           raw,
		At:             p.now(),
	}
	return p.publishJSON(ctx, string(topic), env)
}

func (p *Publisher) publishJSON(ctx context.Context, channel string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	p.logger.Debug("event published", "channel", channel)
	return nil
}

// PublishChat публикует изменение чата.
func (p *Publisher) PublishChat(ctx context.Context, e domain.ChatEvent) error {
	return p.Publish(ctx, domain.TopicChatEvents, e.Action, e.OrganizationID, e)
}

// PublishMessage публикует событие сообщения.
func (p *Publisher) PublishMessage(ctx context.Context, e domain.MessageEvent) error {
	return p.Publish(ctx, domain.TopicMessageEvents, e.Action, e.OrganizationID, e)
}

// PublishTyping публикует эфемерный сигнал typing/recording.
func (p *Publisher) PublishTyping(ctx context.Context, e domain.TypingEvent) error {
	return p.Publish(ctx, domain.TopicTypingEvents, e.RealtimeName(), e.OrganizationID, e)
}

// PublishChannelSync публикует результат синхронизации канала.
func (p *Publisher) PublishChannelSync(ctx context.Context, e domain.ChannelSyncEvent) error {
	return p.Publish(ctx, domain.TopicChannelSync, domain.RealtimeChannelSync, e.OrganizationID, e)
}

// PublishContactUpdated просит dashboard организации перечитать контакт.
func (p *Publisher) PublishContactUpdated(ctx context.Context, e domain.ContactUpdatedEvent) error {
	return p.Publish(ctx, domain.TopicChatEvents, domain.RealtimeContactUpdated, e.OrganizationID, e)
}
