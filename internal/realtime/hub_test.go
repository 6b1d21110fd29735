package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
)

func TestHub_EmitOnlyToRoomMembers(t *testing.T) {
	hub := NewHub(4, nil)

	orgA := hub.Join(OrgRoom("a"))
	agent := hub.Join(OrgRoom("a"), AgentRoom("u1"))
	orgB := hub.Join(OrgRoom("b"))

	n, err := hub.Emit(AgentRoom("u1"), domain.RealtimeTypingStart, map[string]string{"chatId": "c1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	frame := <-agent.Frames()
	assert.Equal(t, AgentRoom("u1"), frame.Room)
	assert.Equal(t, domain.RealtimeTypingStart, frame.Event)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(frame.Data))

	assert.Empty(t, orgA.Frames())
	assert.Empty(t, orgB.Frames())

	n, err = hub.Emit(OrgRoom("a"), domain.RealtimeChatCreated, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHub_LeaveRemovesEmptyRooms(t *testing.T) {
	hub := NewHub(1, nil)
	c := hub.Join(OrgRoom("a"), AgentRoom("u1"))
	assert.Equal(t, 1, hub.Members(OrgRoom("a")))

	hub.Leave(c)
	assert.Equal(t, 0, hub.Members(OrgRoom("a")))
	assert.Equal(t, 0, hub.Members(AgentRoom("u1")))

	_, ok := <-c.Frames()
	assert.False(t, ok)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(1, nil)
	c := hub.Join(OrgRoom("a"))

	n1, _ := hub.Emit(OrgRoom("a"), domain.RealtimeMessageNew, 1)
	n2, _ := hub.Emit(OrgRoom("a"), domain.RealtimeMessageNew, 2)

	assert.Equal(t, 1, n1)
	assert.Equal(t, 0, n2)
	assert.Len(t, c.Frames(), 1)
}

func TestHandler_RequiresOrganization(t *testing.T) {
	hub := NewHub(1, nil)
	rec := httptest.NewRecorder()
	hub.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_StreamsFrames(t *testing.T) {
	hub := NewHub(4, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?organization_id=a&agent_id=u1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Клиент зарегистрирован до того, как заголовки ушли клиенту
	require.Equal(t, 1, hub.Members(AgentRoom("u1")))

	_, err = hub.Emit(AgentRoom("u1"), domain.RealtimeRecordingStart, map[string]string{"chatId": "c9"})
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "event: recording:start", lines[0])
	assert.Equal(t, `data: {"chatId":"c9"}`, lines[1])
}
