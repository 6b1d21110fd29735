// Package routing определяет, в какую комнату и с каким chat id должно
// уйти событие чата.
//
// Для WhatsApp-чатов цель — комната организации. Внутренний чат
// разбирается по ContactLink контакта:
//   - CrossOrgLink: в базе целевой организации ищется зеркальный контакт,
//     указывающий обратно на источник, и его открытый чат; событие уходит
//     в org:{target} с chat id целевой организации
//   - ManualInternalLink: событие уходит только второму участнику в agent:{id}
//
// Эфемерные сигналы при любой неудаче отбрасываются молча (Router).
// Durable-события получают тот же Target или *ResolveError.
package routing

import (
	"context"
	"errors"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/realtime"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// ChatStore — чтение чатов и контактов базы tenant'а.
type ChatStore interface {
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)
	GetContact(ctx context.Context, contactID string) (*domain.Contact, error)
	FindMirroredContact(ctx context.Context, sourceOrgID string) (*domain.Contact, error)
	FindLiveChat(ctx context.Context, contactID string) (*domain.Chat, error)
}

// StoreSource открывает базу tenant'а по organization id.
type StoreSource func(ctx context.Context, orgID string) (ChatStore, error)

// FromStores адаптирует tenantdb.Stores к StoreSource.
func FromStores(s *tenantdb.Stores) StoreSource {
	return func(ctx context.Context, orgID string) (ChatStore, error) {
		store, err := s.For(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Target — куда доставить событие.
type Target struct {
	Room realtime.Room

	// OrganizationID — организация получателя.
	OrganizationID string

	// ChatID — id чата в базе получателя.
	ChatID string

	// CrossOrg — событие пересекает границу организаций.
	CrossOrg bool
}

// Resolver вычисляет Target для чата.
type Resolver struct {
	stores StoreSource
}

// NewResolver создаёт Resolver.
func NewResolver(stores StoreSource) *Resolver {
	return &Resolver{stores: stores}
}

// Resolve находит получателя события чата chatID организации orgID.
// actingAgentID — агент, породивший событие; нужен для внутренних чатов.
func (r *Resolver) Resolve(ctx context.Context, orgID, chatID, actingAgentID string) (*Target, error) {
	fail := func(reason, err error) (*Target, error) {
		return nil, &ResolveError{OrganizationID: orgID, ChatID: chatID, Reason: reason, Err: err}
	}

	store, err := r.stores(ctx, orgID)
	if err != nil {
		return fail(ErrSourceUnavailable, err)
	}

	chat, err := store.GetChat(ctx, chatID)
	if err != nil {
		return fail(ErrChatNotFound, err)
	}

	switch chat.MessageSource {
	case domain.MessageSourceWhatsapp:
		return &Target{Room: realtime.OrgRoom(orgID), OrganizationID: orgID, ChatID: chat.ID}, nil
	case domain.MessageSourceInternal:
	default:
		return fail(ErrUnknownSource, nil)
	}

	contact, err := store.GetContact(ctx, chat.ContactID)
	if err != nil {
		return fail(ErrContactNotFound, err)
	}

	switch link := contact.Link.(type) {
	case domain.CrossOrgLink:
		return r.resolveCrossOrg(ctx, orgID, link, fail)

	case domain.ManualInternalLink:
		other := counterpart(link.AgentID, chat.InitiatorAgentID, actingAgentID)
		if other == "" {
			return fail(ErrNoCounterpart, nil)
		}
		return &Target{Room: realtime.AgentRoom(other), OrganizationID: orgID, ChatID: chat.ID}, nil

	default:
		return fail(ErrNoCounterpart, nil)
	}
}

func (r *Resolver) resolveCrossOrg(
	ctx context.Context,
	sourceOrgID string,
	link domain.CrossOrgLink,
	fail func(reason, err error) (*Target, error),
) (*Target, error) {
	target, err := r.stores(ctx, link.TargetOrganizationID)
	if err != nil {
		return fail(ErrTargetUnavailable, err)
	}

	mirror, err := target.FindMirroredContact(ctx, sourceOrgID)
	if err != nil {
		return fail(ErrMirrorNotFound, err)
	}

	chat, err := target.FindLiveChat(ctx, mirror.ID)
	if errors.Is(err, tenantdb.ErrNotFound) || (err == nil && !chat.Status.IsLive()) {
		return fail(ErrChatNotLive, nil)
	}
	if err != nil {
		return fail(ErrChatNotLive, err)
	}

	return &Target{
		Room:           realtime.OrgRoom(link.TargetOrganizationID),
		OrganizationID: link.TargetOrganizationID,
		ChatID:         chat.ID,
		CrossOrg:       true,
	}, nil
}

// counterpart — второй участник внутреннего чата.
//
// Участники: агент из метаданных контакта и инициатор чата. Если
// действующий агент — один из них, возвращается другой. Пустая строка,
// если второго участника нет.
func counterpart(contactAgentID string, initiator *string, acting string) string {
	if acting == "" {
		return ""
	}

	initiatorID := ""
	if initiator != nil {
		initiatorID = *initiator
	}

	var other string
	switch acting {
	case contactAgentID:
		other = initiatorID
	case initiatorID:
		other = contactAgentID
	default:
		return ""
	}

	if other == acting {
		return ""
	}
	return other
}
