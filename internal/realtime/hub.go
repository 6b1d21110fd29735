// Package realtime доставляет события подключённым клиентам dashboard'а.
//
// Клиенты группируются в комнаты:
//   - org:{organizationId} — все агенты организации
//   - agent:{agentId} — приватная комната агента
//
// Hub держит подписки в памяти процесса; транспорт к клиенту —
// Server-Sent Events (см. Handler).
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

const defaultClientBuffer = 64

// Room — имя комнаты.
type Room string

// OrgRoom — широковещательная комната организации.
func OrgRoom(orgID string) Room { return Room("org:" + orgID) }

// AgentRoom — приватная комната агента.
func AgentRoom(agentID string) Room { return Room("agent:" + agentID) }

// Frame — одно событие для клиента.
type Frame struct {
	Room  Room                 `json:"room"`
	Event domain.RealtimeEvent `json:"event"`
	Data  json.RawMessage      `json:"data"`
}

// Client — подписка на набор комнат.
type Client struct {
	frames chan Frame
	rooms  []Room
}

// Frames — канал событий клиента. Закрывается при Leave.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Rooms — комнаты, в которых состоит клиент.
func (c *Client) Rooms() []Room { return c.rooms }

// Hub — реестр комнат процесса.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[Room]map[*Client]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub создаёт Hub. buffer — размер очереди кадров на клиента.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[Room]map[*Client]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Join подписывает нового клиента на комнаты.
func (h *Hub) Join(rooms ...Room) *Client {
	c := &Client{frames: make(chan Frame, h.buffer), rooms: rooms}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range rooms {
		members, ok := h.rooms[r]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[r] = members
		}
		members[c] = struct{}{}
	}
	return c
}

// Leave отписывает клиента и закрывает его канал.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range c.rooms {
		members := h.rooms[r]
		if _, ok := members[c]; !ok {
			continue
		}
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, r)
		}
	}
	close(c.frames)
	c.rooms = nil
}

// Emit отправляет событие всем клиентам комнаты и возвращает число
// получателей. Клиент с переполненной очередью пропускает кадр.
func (h *Hub) Emit(room Room, event domain.RealtimeEvent, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", event, err)
	}
	frame := Frame{Room: room, Event: event, Data: raw}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		select {
		case c.frames <- frame:
			delivered++
		default:
			h.logger.Warn("client buffer full, frame dropped", "room", room, "event", event)
			telemetry.FanoutDrops.WithLabelValues("slow_client").Inc()
		}
	}

	telemetry.FanoutEmits.WithLabelValues(string(event)).Inc()
	return delivered, nil
}

// Members возвращает число клиентов в комнате.
func (h *Hub) Members(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
