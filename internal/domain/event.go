package domain

import "time"

// Topic — канал pub/sub шины.
type Topic string

const (
	TopicChatEvents    Topic = "chat:events"
	TopicMessageEvents Topic = "message:events"
	TopicTypingEvents  Topic = "typing:events"
	TopicChannelSync   Topic = "channel:sync"
)

// Topics — все топики, которые слушает realtime-gateway.
func Topics() []Topic {
	return []Topic{TopicChatEvents, TopicMessageEvents, TopicTypingEvents, TopicChannelSync}
}

// RealtimeEvent — имя события, которое получает dashboard.
type RealtimeEvent string

const (
	RealtimeChatCreated    RealtimeEvent = "chat:created"
	RealtimeChatUpdated    RealtimeEvent = "chat:updated"
	RealtimeChatDeleted    RealtimeEvent = "chat:deleted"
	RealtimeMessageNew     RealtimeEvent = "message:new"
	RealtimeMessageUpdated RealtimeEvent = "message:updated"
	RealtimeMessageDeleted RealtimeEvent = "message:deleted"
	RealtimeTypingStart    RealtimeEvent = "typing:start"
	RealtimeTypingStop     RealtimeEvent = "typing:stop"
	RealtimeRecordingStart RealtimeEvent = "recording:start"
	RealtimeRecordingStop  RealtimeEvent = "recording:stop"
	RealtimeChannelSync    RealtimeEvent = "channel:sync"
	RealtimeContactUpdated RealtimeEvent = "contact:updated"
)

// ChatEvent — изменение чата.
//
// TargetAgentID задаёт адресата явно; без него получатель вычисляется
// по чату, а ActingAgentID нужен для внутренних чатов.
type ChatEvent struct {
	OrganizationID string         `json:"organizationId"`
	ChatID         string         `json:"chatId"`
	Action         RealtimeEvent  `json:"action"`
	TargetAgentID  string         `json:"targetAgentId,omitempty"`
	ActingAgentID  string         `json:"actingAgentId,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// MessageEvent — новое/изменённое сообщение или отметка о прочтении.
type MessageEvent struct {
	OrganizationID string         `json:"organizationId"`
	ChatID         string         `json:"chatId"`
	MessageID      string         `json:"messageId"`
	Action         RealtimeEvent  `json:"action"`
	TargetAgentID  string         `json:"targetAgentId,omitempty"`
	ActingAgentID  string         `json:"actingAgentId,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// SignalKind — вид эфемерного сигнала.
type SignalKind string

const (
	SignalTyping    SignalKind = "typing"
	SignalRecording SignalKind = "recording"
)

// TypingEvent — эфемерный сигнал typing/recording.
//
// Ни хранения, ни retry: потерянный stop гасится таймаутом на клиенте.
type TypingEvent struct {
	OrganizationID string     `json:"organizationId"`
	ChatID         string     `json:"chatId"`
	AgentID        string     `json:"agentId"`
	Kind           SignalKind `json:"kind"`
	Active         bool       `json:"active"`
	At             time.Time  `json:"at"`
}

// RealtimeName возвращает имя события для клиента (typing:start, recording:stop и т.д.).
func (e TypingEvent) RealtimeName() RealtimeEvent {
	switch {
	case e.Kind == SignalRecording && e.Active:
		return RealtimeRecordingStart
	case e.Kind == SignalRecording:
		return RealtimeRecordingStop
	case e.Active:
		return RealtimeTypingStart
	default:
		return RealtimeTypingStop
	}
}

// ChannelSyncEvent — результат синхронизации канала.
type ChannelSyncEvent struct {
	OrganizationID string `json:"organizationId"`
	ChannelID      string `json:"channelId"`
	Status         string `json:"status"`
	SyncStatus     string `json:"syncStatus"`
}

// ContactUpdatedEvent — обновление аватара зеркального контакта.
type ContactUpdatedEvent struct {
	OrganizationID string `json:"organizationId"`
	ContactID      string `json:"contactId"`
	AvatarURL      string `json:"avatarUrl"`
}
