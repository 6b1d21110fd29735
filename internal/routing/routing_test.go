package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/events"
	"github.com/shaiso/Chatplane/internal/realtime"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// memChats — база tenant'а в памяти.
type memChats struct {
	chats    map[string]*domain.Chat
	contacts map[string]*domain.Contact
}

func newMemChats() *memChats {
	return &memChats{chats: map[string]*domain.Chat{}, contacts: map[string]*domain.Contact{}}
}

func (m *memChats) GetChat(_ context.Context, id string) (*domain.Chat, error) {
	if c, ok := m.chats[id]; ok {
		return c, nil
	}
	return nil, tenantdb.ErrNotFound
}

func (m *memChats) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	if c, ok := m.contacts[id]; ok {
		return c, nil
	}
	return nil, tenantdb.ErrNotFound
}

func (m *memChats) FindMirroredContact(_ context.Context, sourceOrgID string) (*domain.Contact, error) {
	for _, c := range m.contacts {
		if l, ok := c.Link.(domain.CrossOrgLink); ok && l.TargetOrganizationID == sourceOrgID {
			return c, nil
		}
	}
	return nil, tenantdb.ErrNotFound
}

func (m *memChats) FindLiveChat(_ context.Context, contactID string) (*domain.Chat, error) {
	for _, c := range m.chats {
		if c.ContactID == contactID && c.Status.IsLive() {
			return c, nil
		}
	}
	return nil, tenantdb.ErrNotFound
}

type tenants map[string]*memChats

func (t tenants) source() StoreSource {
	return func(_ context.Context, orgID string) (ChatStore, error) {
		if s, ok := t[orgID]; ok {
			return s, nil
		}
		return nil, &tenantdb.TenantNotFoundError{OrganizationID: orgID}
	}
}

type emitted struct {
	room  realtime.Room
	event domain.RealtimeEvent
	data  any
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []emitted
}

func (r *recordingEmitter) Emit(room realtime.Room, event domain.RealtimeEvent, data any) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, emitted{room, event, data})
	return 1, nil
}

func ptr(s string) *string { return &s }

// crossOrgFixture: A держит чат chat-a с контактом, указывающим на B;
// B держит зеркальный контакт, указывающий на A, и открытый чат chat-b.
func crossOrgFixture() tenants {
	a := newMemChats()
	a.contacts["contact-b"] = &domain.Contact{ID: "contact-b", Link: domain.CrossOrgLink{TargetOrganizationID: "org-b"}}
	a.chats["chat-a"] = &domain.Chat{ID: "chat-a", ContactID: "contact-b", MessageSource: domain.MessageSourceInternal, Status: domain.ChatStatusOpen}

	b := newMemChats()
	b.contacts["contact-a"] = &domain.Contact{ID: "contact-a", Link: domain.CrossOrgLink{TargetOrganizationID: "org-a"}}
	b.contacts["other"] = &domain.Contact{ID: "other", Link: domain.WhatsappLink{}}
	b.chats["chat-b-closed"] = &domain.Chat{ID: "chat-b-closed", ContactID: "contact-a", MessageSource: domain.MessageSourceInternal, Status: domain.ChatStatusClosed}
	b.chats["chat-b"] = &domain.Chat{ID: "chat-b", ContactID: "contact-a", MessageSource: domain.MessageSourceInternal, Status: domain.ChatStatusOpen}

	return tenants{"org-a": a, "org-b": b}
}

func TestRouteSignal_CrossOrgTranslatesChatID(t *testing.T) {
	em := &recordingEmitter{}
	router := NewRouter(NewResolver(crossOrgFixture().source()), em, nil)

	router.RouteSignal(context.Background(), domain.TypingEvent{
		OrganizationID: "org-a",
		ChatID:         "chat-a",
		AgentID:        "agent-1",
		Kind:           domain.SignalRecording,
		Active:         true,
	})

	require.Len(t, em.calls, 1)
	assert.Equal(t, realtime.OrgRoom("org-b"), em.calls[0].room)
	assert.Equal(t, domain.RealtimeRecordingStart, em.calls[0].event)
	assert.Equal(t, SignalPayload{ChatID: "chat-b", AgentID: "agent-1"}, em.calls[0].data)
}

func TestRouteSignal_IntraOrgGoesToCounterpartOnly(t *testing.T) {
	a := newMemChats()
	a.contacts["agent-contact"] = &domain.Contact{ID: "agent-contact", Link: domain.ManualInternalLink{AgentID: "agent-2"}}
	a.chats["dm"] = &domain.Chat{
		ID:               "dm",
		ContactID:        "agent-contact",
		MessageSource:    domain.MessageSourceInternal,
		Status:           domain.ChatStatusOpen,
		InitiatorAgentID: ptr("agent-1"),
	}

	em := &recordingEmitter{}
	router := NewRouter(NewResolver(tenants{"org-a": a}.source()), em, nil)

	// agent-1 печатает → получает agent-2
	router.RouteSignal(context.Background(), domain.TypingEvent{OrganizationID: "org-a", ChatID: "dm", AgentID: "agent-1", Kind: domain.SignalTyping, Active: true})
	// agent-2 отвечает → получает agent-1
	router.RouteSignal(context.Background(), domain.TypingEvent{OrganizationID: "org-a", ChatID: "dm", AgentID: "agent-2", Kind: domain.SignalTyping})

	require.Len(t, em.calls, 2)
	assert.Equal(t, realtime.AgentRoom("agent-2"), em.calls[0].room)
	assert.Equal(t, domain.RealtimeTypingStart, em.calls[0].event)
	assert.Equal(t, realtime.AgentRoom("agent-1"), em.calls[1].room)
	assert.Equal(t, domain.RealtimeTypingStop, em.calls[1].event)

	for _, c := range em.calls {
		assert.NotEqual(t, realtime.OrgRoom("org-a"), c.room)
	}
}

func TestRouteSignal_WhatsappBroadcastsToOrg(t *testing.T) {
	a := newMemChats()
	a.chats["wa"] = &domain.Chat{ID: "wa", ContactID: "x", MessageSource: domain.MessageSourceWhatsapp, Status: domain.ChatStatusOpen}

	em := &recordingEmitter{}
	NewRouter(NewResolver(tenants{"org-a": a}.source()), em, nil).
		RouteSignal(context.Background(), domain.TypingEvent{OrganizationID: "org-a", ChatID: "wa", AgentID: "agent-1", Active: true})

	require.Len(t, em.calls, 1)
	assert.Equal(t, realtime.OrgRoom("org-a"), em.calls[0].room)
}

func TestRouteSignal_DropsSilently(t *testing.T) {
	noLiveChat := crossOrgFixture()
	delete(noLiveChat["org-b"].chats, "chat-b")

	targetDown := crossOrgFixture()
	delete(targetDown, "org-b")

	noMirror := crossOrgFixture()
	delete(noMirror["org-b"].contacts, "contact-a")

	tests := []struct {
		name   string
		stores tenants
		chatID string
		reason error
	}{
		{"mirrored chat closed", noLiveChat, "chat-a", ErrChatNotLive},
		{"target tenant unavailable", targetDown, "chat-a", ErrTargetUnavailable},
		{"mirror missing", noMirror, "chat-a", ErrMirrorNotFound},
		{"chat missing", crossOrgFixture(), "nope", ErrChatNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(tt.stores.source())
			_, err := resolver.Resolve(context.Background(), "org-a", tt.chatID, "agent-1")
			assert.ErrorIs(t, err, tt.reason)

			em := &recordingEmitter{}
			NewRouter(resolver, em, nil).RouteSignal(context.Background(), domain.TypingEvent{
				OrganizationID: "org-a", ChatID: tt.chatID, AgentID: "agent-1", Active: true,
			})
			assert.Empty(t, em.calls)
		})
	}
}

func TestResolve_DurableGetsTypedError(t *testing.T) {
	stores := crossOrgFixture()
	delete(stores, "org-b")

	_, err := NewResolver(stores.source()).Resolve(context.Background(), "org-a", "chat-a", "")

	var re *ResolveError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrTargetUnavailable, re.Reason)
	assert.ErrorIs(t, err, tenantdb.ErrTenantNotFound)
	assert.Equal(t, "target_unavailable", dropReason(err))
}

func TestCounterpart(t *testing.T) {
	assert.Equal(t, "b", counterpart("b", ptr("a"), "a"))
	assert.Equal(t, "a", counterpart("b", ptr("a"), "b"))
	assert.Equal(t, "", counterpart("b", ptr("a"), "stranger"))
	assert.Equal(t, "", counterpart("b", nil, "b"))
	assert.Equal(t, "", counterpart("a", ptr("a"), "a"))
	assert.Equal(t, "", counterpart("b", nil, ""))
}

func envelope(t *testing.T, topic domain.Topic, event domain.RealtimeEvent, data any) *events.Envelope {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &events.Envelope{ID: "e1", Topic: topic, Event: event, Data: raw}
}

func TestDispatch_ScopesDurableEvents(t *testing.T) {
	stores := crossOrgFixture()
	stores["org-a"].chats["c"] = &domain.Chat{ID: "c", MessageSource: domain.MessageSourceWhatsapp, Status: domain.ChatStatusOpen}

	em := &recordingEmitter{}
	router := NewRouter(NewResolver(stores.source()), em, nil)
	ctx := context.Background()

	require.NoError(t, router.Dispatch(ctx, envelope(t, domain.TopicMessageEvents, domain.RealtimeMessageNew,
		domain.MessageEvent{OrganizationID: "org-a", ChatID: "c", MessageID: "m", Action: domain.RealtimeMessageNew})))
	require.NoError(t, router.Dispatch(ctx, envelope(t, domain.TopicChatEvents, domain.RealtimeChatUpdated,
		domain.ChatEvent{OrganizationID: "org-a", ChatID: "c", Action: domain.RealtimeChatUpdated, TargetAgentID: "agent-7"})))
	require.NoError(t, router.Dispatch(ctx, envelope(t, domain.TopicChatEvents, domain.RealtimeContactUpdated,
		domain.ContactUpdatedEvent{OrganizationID: "org-b", ContactID: "k", AvatarURL: "https://x/logo.png"})))
	require.NoError(t, router.Dispatch(ctx, envelope(t, domain.TopicChannelSync, domain.RealtimeChannelSync,
		domain.ChannelSyncEvent{OrganizationID: "org-c", ChannelID: "ch"})))
	require.NoError(t, router.Dispatch(ctx, envelope(t, domain.TopicChatEvents, domain.RealtimeChatDeleted,
		domain.ChatEvent{OrganizationID: "org-a", ChatID: "gone", Action: domain.RealtimeChatDeleted})))

	require.Len(t, em.calls, 5)
	assert.Equal(t, realtime.OrgRoom("org-a"), em.calls[0].room)
	assert.Equal(t, domain.RealtimeMessageNew, em.calls[0].event)
	assert.Equal(t, realtime.AgentRoom("agent-7"), em.calls[1].room)
	assert.Equal(t, realtime.OrgRoom("org-b"), em.calls[2].room)
	assert.Equal(t, domain.RealtimeContactUpdated, em.calls[2].event)
	assert.Equal(t, realtime.OrgRoom("org-c"), em.calls[3].room)
	assert.Equal(t, realtime.OrgRoom("org-a"), em.calls[4].room)

	assert.Error(t, router.Dispatch(ctx, &events.Envelope{Topic: "nope"}))
}

func TestDispatch_CrossOrgMessageReachesBothOrgs(t *testing.T) {
	em := &recordingEmitter{}
	router := NewRouter(NewResolver(crossOrgFixture().source()), em, nil)

	err := router.Dispatch(context.Background(), envelope(t, domain.TopicMessageEvents, domain.RealtimeMessageNew,
		domain.MessageEvent{OrganizationID: "org-a", ChatID: "chat-a", MessageID: "m1", Action: domain.RealtimeMessageNew}))
	require.NoError(t, err)

	require.Len(t, em.calls, 2)
	assert.Equal(t, realtime.OrgRoom("org-a"), em.calls[0].room)
	assert.Equal(t, "chat-a", em.calls[0].data.(domain.MessageEvent).ChatID)

	assert.Equal(t, realtime.OrgRoom("org-b"), em.calls[1].room)
	assert.Equal(t, domain.RealtimeMessageNew, em.calls[1].event)
	translated := em.calls[1].data.(domain.MessageEvent)
	assert.Equal(t, "chat-b", translated.ChatID)
	assert.Equal(t, "org-b", translated.OrganizationID)
	assert.Equal(t, "m1", translated.MessageID)
}

func TestDispatch_DurableEventSurfacesResolveError(t *testing.T) {
	em := &recordingEmitter{}
	router := NewRouter(NewResolver(crossOrgFixture().source()), em, nil)

	err := router.Dispatch(context.Background(), envelope(t, domain.TopicMessageEvents, domain.RealtimeMessageNew,
		domain.MessageEvent{OrganizationID: "org-a", ChatID: "missing", MessageID: "m1", Action: domain.RealtimeMessageNew}))

	var re *ResolveError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Equal(t, "missing", re.ChatID)
	assert.Empty(t, em.calls)
}

func TestRouteDurable_IntraOrgGoesToCounterpart(t *testing.T) {
	a := newMemChats()
	a.contacts["k"] = &domain.Contact{ID: "k", Link: domain.ManualInternalLink{AgentID: "agent-2"}}
	a.chats["c"] = &domain.Chat{ID: "c", ContactID: "k", MessageSource: domain.MessageSourceInternal,
		Status: domain.ChatStatusOpen, InitiatorAgentID: ptr("agent-1")}

	em := &recordingEmitter{}
	router := NewRouter(NewResolver(tenants{"org-a": a}.source()), em, nil)

	err := router.Dispatch(context.Background(), envelope(t, domain.TopicChatEvents, domain.RealtimeChatUpdated,
		domain.ChatEvent{OrganizationID: "org-a", ChatID: "c", Action: domain.RealtimeChatUpdated, ActingAgentID: "agent-1"}))
	require.NoError(t, err)

	require.Len(t, em.calls, 1)
	assert.Equal(t, realtime.AgentRoom("agent-2"), em.calls[0].room)
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	em := &recordingEmitter{}
	router := NewRouter(NewResolver(tenants{}.source()), em, nil)

	ch := make(chan events.Envelope, 1)
	ch <- *envelope(t, domain.TopicChannelSync, domain.RealtimeChannelSync, domain.ChannelSyncEvent{OrganizationID: "o"})
	close(ch)

	router.Run(context.Background(), ch)
	assert.Len(t, em.calls, 1)
}
