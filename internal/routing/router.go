package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/events"
	"github.com/shaiso/Chatplane/internal/realtime"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// Emitter доставляет событие в комнату.
type Emitter interface {
	Emit(room realtime.Room, event domain.RealtimeEvent, data any) (int, error)
}

// SignalPayload — то, что получает клиент вместе с typing/recording.
type SignalPayload struct {
	ChatID  string `json:"chatId"`
	AgentID string `json:"agentId"`
}

// Router переносит события шины в комнаты realtime.
type Router struct {
	resolver *Resolver
	emitter  Emitter
	logger   *slog.Logger
}

// NewRouter создаёт Router.
func NewRouter(resolver *Resolver, emitter Emitter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{resolver: resolver, emitter: emitter, logger: logger}
}

// Run читает конверты до закрытия канала или отмены ctx.
func (r *Router) Run(ctx context.Context, envelopes <-chan events.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			if err := r.Dispatch(ctx, &env); err != nil {
				r.logger.Warn("failed to dispatch event",
					"topic", env.Topic,
					"event", env.Event,
					"event_id", env.ID,
					"error", err,
				)
			}
		}
	}
}

// Dispatch доставляет один конверт.
//
// Недоставленный typing/recording ошибкой не считается. События чатов и
// сообщений идут через RouteDurable и возвращают *ResolveError, если
// получатель не найден.
func (r *Router) Dispatch(ctx context.Context, env *events.Envelope) error {
	switch env.Topic {
	case domain.TopicTypingEvents:
		e, err := events.Decode[domain.TypingEvent](env)
		if err != nil {
			return err
		}
		r.RouteSignal(ctx, e)
		return nil

	case domain.TopicChatEvents:
		if env.Event == domain.RealtimeContactUpdated {
			e, err := events.Decode[domain.ContactUpdatedEvent](env)
			if err != nil {
				return err
			}
			return r.emit(realtime.OrgRoom(e.OrganizationID), env.Event, e)
		}
		e, err := events.Decode[domain.ChatEvent](env)
		if err != nil {
			return err
		}
		// Удалённый чат уже не найти в базе: только явная адресация.
		if e.TargetAgentID != "" || e.Action == domain.RealtimeChatDeleted {
			return r.emit(scopedRoom(e.OrganizationID, e.TargetAgentID), e.Action, e)
		}
		return r.RouteDurable(ctx, e.OrganizationID, e.ChatID, e.ActingAgentID, e.Action,
			func(t *Target) any {
				e.OrganizationID, e.ChatID = t.OrganizationID, t.ChatID
				return e
			})

	case domain.TopicMessageEvents:
		e, err := events.Decode[domain.MessageEvent](env)
		if err != nil {
			return err
		}
		if e.TargetAgentID != "" {
			return r.emit(realtime.AgentRoom(e.TargetAgentID), e.Action, e)
		}
		return r.RouteDurable(ctx, e.OrganizationID, e.ChatID, e.ActingAgentID, e.Action,
			func(t *Target) any {
				e.OrganizationID, e.ChatID = t.OrganizationID, t.ChatID
				return e
			})

	case domain.TopicChannelSync:
		e, err := events.Decode[domain.ChannelSyncEvent](env)
		if err != nil {
			return err
		}
		return r.emit(realtime.OrgRoom(e.OrganizationID), domain.RealtimeChannelSync, e)
	}

	return fmt.Errorf("unknown topic %q", env.Topic)
}

// RouteSignal доставляет typing/recording. Если получатель не найден,
// сигнал отбрасывается: ни ошибки, ни retry.
func (r *Router) RouteSignal(ctx context.Context, e domain.TypingEvent) {
	target, err := r.resolver.Resolve(ctx, e.OrganizationID, e.ChatID, e.AgentID)
	if err != nil {
		telemetry.FanoutDrops.WithLabelValues(dropReason(err)).Inc()
		r.logger.Debug("signal dropped",
			"organization_id", e.OrganizationID,
			"chat_id", e.ChatID,
			"reason", err,
		)
		return
	}

	payload := SignalPayload{ChatID: target.ChatID, AgentID: e.AgentID}
	if err := r.emit(target.Room, e.RealtimeName(), payload); err != nil {
		r.logger.Debug("signal emit failed", "room", target.Room, "error", err)
	}
}

// RouteDurable доставляет событие чата chatID организации orgID тому же
// получателю, что и сигналы, но неудача не глотается: возвращается
// *ResolveError.
//
// Для чата с другой организацией событие получают обе стороны: исходная
// организация в своём виде, целевая с data, переведённым translate на
// свой chat id.
func (r *Router) RouteDurable(
	ctx context.Context,
	orgID, chatID, actingAgentID string,
	event domain.RealtimeEvent,
	translate func(*Target) any,
) error {
	target, err := r.resolver.Resolve(ctx, orgID, chatID, actingAgentID)
	if err != nil {
		return err
	}

	if !target.CrossOrg {
		return r.emit(target.Room, event, translate(target))
	}

	source := &Target{Room: realtime.OrgRoom(orgID), OrganizationID: orgID, ChatID: chatID}
	if err := r.emit(source.Room, event, translate(source)); err != nil {
		return err
	}
	return r.emit(target.Room, event, translate(target))
}

func (r *Router) emit(room realtime.Room, event domain.RealtimeEvent, data any) error {
	_, err := r.emitter.Emit(room, event, data)
	return err
}

// scopedRoom — приватная комната агента, если событие адресовано ему, иначе комната организации.
func scopedRoom(orgID, agentID string) realtime.Room {
	if agentID != "" {
		return realtime.AgentRoom(agentID)
	}
	return realtime.OrgRoom(orgID)
}
