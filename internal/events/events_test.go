package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/provision"
)

type published struct {
	channel string
	body    []byte
}

type fakeRedis struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.msgs = append(f.msgs, published{channel: channel, body: message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func TestPublisher_PublishTyping(t *testing.T) {
	fr := &fakeRedis{}
	pub := NewPublisher(fr, nil)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return at }

	err := pub.PublishTyping(context.Background(), domain.TypingEvent{
		OrganizationID: "org-a",
		ChatID:         "chat-1",
		AgentID:        "agent-1",
		Kind:           domain.SignalRecording,
		Active:         true,
	})
	require.NoError(t, err)

	require.Len(t, fr.msgs, 1)
	assert.Equal(t, "typing:events", fr.msgs[0].channel)

	var env Envelope
	require.NoError(t, json.Unmarshal(fr.msgs[0].body, &env))
	assert.Equal(t, domain.TopicTypingEvents, env.Topic)
	assert.Equal(t, domain.RealtimeRecordingStart, env.Event)
	assert.Equal(t, "org-a", env.OrganizationID)
	assert.Equal(t, at, env.At)
	assert.NotEmpty(t, env.ID)

	ev, err := Decode[domain.TypingEvent](&env)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", ev.ChatID)
	assert.Equal(t, "agent-1", ev.AgentID)
}

func TestPublisher_ContactUpdatedGoesToChatTopic(t *testing.T) {
	fr := &fakeRedis{}
	pub := NewPublisher(fr, nil)

	require.NoError(t, pub.PublishContactUpdated(context.Background(), domain.ContactUpdatedEvent{
		OrganizationID: "org-b", ContactID: "c-1", AvatarURL: "https://cdn.example.com/a.png",
	}))

	var env Envelope
	require.NoError(t, json.Unmarshal(fr.msgs[0].body, &env))
	assert.Equal(t, "chat:events", fr.msgs[0].channel)
	assert.Equal(t, domain.RealtimeContactUpdated, env.Event)
	assert.Equal(t, "org-b", env.OrganizationID)
}

func TestPublisher_Error(t *testing.T) {
	pub := NewPublisher(&fakeRedis{err: errors.New("connection refused")}, nil)

	err := pub.PublishChat(context.Background(), domain.ChatEvent{
		OrganizationID: "org-a", ChatID: "chat-1", Action: domain.RealtimeChatCreated,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat:events")
}

func TestProgressReporter(t *testing.T) {
	fr := &fakeRedis{}
	reporter := NewProgressReporter(NewPublisher(fr, nil))

	reporter.Report(context.Background(), provision.Progress{
		OrganizationID: "org-a",
		Step:           provision.StepMigrate,
		Status:         provision.StepFailed,
		Message:        "Workspace setup failed.",
	})

	require.Len(t, fr.msgs, 1)
	assert.Equal(t, "provisioning:org-a", fr.msgs[0].channel)
	assert.JSONEq(t,
		`{"organizationId":"org-a","step":"migrate","status":"failed","message":"Workspace setup failed."}`,
		string(fr.msgs[0].body))
}
