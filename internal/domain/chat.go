package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageSource — откуда пришёл чат.
type MessageSource string

const (
	// MessageSourceWhatsapp — чат с внешним клиентом через WhatsApp-канал.
	MessageSourceWhatsapp MessageSource = "whatsapp"

	// MessageSourceInternal — внутренний чат (агент↔агент или org↔org).
	MessageSourceInternal MessageSource = "internal"
)

// ChatStatus — статус чата.
type ChatStatus string

const (
	ChatStatusOpen    ChatStatus = "open"
	ChatStatusPending ChatStatus = "pending"
	ChatStatusClosed  ChatStatus = "closed"
)

// IsLive возвращает true для чатов, в которые ещё доставляются сигналы.
func (s ChatStatus) IsLive() bool {
	return s == ChatStatusOpen || s == ChatStatusPending
}

// Chat — чат в базе tenant'а.
type Chat struct {
	ID            string        `json:"id"`
	ContactID     string        `json:"contact_id"`
	MessageSource MessageSource `json:"message_source"`
	Status        ChatStatus    `json:"status"`

	// InitiatorAgentID — агент, открывший внутренний чат. Nil для WhatsApp.
	InitiatorAgentID *string `json:"initiator_agent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Contact — контакт в базе tenant'а.
type Contact struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Name           string      `json:"name"`
	AvatarURL      *string     `json:"avatar_url,omitempty"`
	Link           ContactLink `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ContactLink описывает, с кем на самом деле связан контакт.
//
// Закрытое множество вариантов:
//   - WhatsappLink       — внешний номер WhatsApp
//   - ManualInternalLink — другой агент той же организации
//   - CrossOrgLink       — зеркальный контакт другой организации
//
// Разбирается через type switch; новых реализаций вне пакета быть не может.
type ContactLink interface {
	contactLink()
}

// WhatsappLink — обычный контакт WhatsApp.
type WhatsappLink struct{}

// ManualInternalLink — контакт, заведённый вручную для агента своей организации.
type ManualInternalLink struct {
	AgentID string
}

// CrossOrgLink — контакт, представляющий другую организацию.
type CrossOrgLink struct {
	TargetOrganizationID string
	TargetInstanceCode   string
}

func (WhatsappLink) contactLink()       {}
func (ManualInternalLink) contactLink() {}
func (CrossOrgLink) contactLink()       {}

// contactMetadata — форма jsonb-колонки contact.metadata.
type contactMetadata struct {
	TargetOrganizationID string `json:"targetOrganizationId,omitempty"`
	TargetInstanceCode   string `json:"targetInstanceCode,omitempty"`
	AgentID              string `json:"agentId,omitempty"`
}

// ParseContactLink разбирает contact.metadata.
//
// targetOrganizationId имеет приоритет над agentId. Пустые или
// отсутствующие метаданные означают WhatsappLink.
func ParseContactLink(raw []byte) (ContactLink, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return WhatsappLink{}, nil
	}

	var md contactMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("parse contact metadata: %w", err)
	}

	switch {
	case md.TargetOrganizationID != "":
		return CrossOrgLink{
			TargetOrganizationID: md.TargetOrganizationID,
			TargetInstanceCode:   md.TargetInstanceCode,
		}, nil
	case md.AgentID != "":
		return ManualInternalLink{AgentID: md.AgentID}, nil
	default:
		return WhatsappLink{}, nil
	}
}

// MarshalContactLink — обратное преобразование для записи в contact.metadata.
func MarshalContactLink(link ContactLink) ([]byte, error) {
	var md contactMetadata
	switch l := link.(type) {
	case CrossOrgLink:
		md.TargetOrganizationID = l.TargetOrganizationID
		md.TargetInstanceCode = l.TargetInstanceCode
	case ManualInternalLink:
		md.AgentID = l.AgentID
	case WhatsappLink, nil:
	default:
		return nil, fmt.Errorf("unknown contact link %T", link)
	}
	return json.Marshal(md)
}

// MediaType — тип вложения.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeDocument MediaType = "document"
)

// Окна хранения медиа. Должны совпадать с lifecycle-правилами бакета.
const (
	VideoRetention   = 48 * time.Hour
	DefaultRetention = 90 * 24 * time.Hour
)

// RetentionWindow возвращает, сколько скачанное вложение живёт в хранилище.
func (m MediaType) RetentionWindow() time.Duration {
	if m == MediaTypeVideo {
		return VideoRetention
	}
	return DefaultRetention
}

// MediaTypes — все известные типы вложений.
func MediaTypes() []MediaType {
	return []MediaType{MediaTypeImage, MediaTypeVideo, MediaTypeAudio, MediaTypeDocument}
}

// DownloadStatus — статус скачивания вложения.
type DownloadStatus string

const (
	DownloadStatusPending   DownloadStatus = "pending"
	DownloadStatusCompleted DownloadStatus = "completed"
	DownloadStatusFailed    DownloadStatus = "failed"
	DownloadStatusExpired   DownloadStatus = "expired"
)

// Attachment — вложение сообщения.
type Attachment struct {
	ID             string         `json:"id"`
	MessageID      string         `json:"message_id"`
	MediaType      MediaType      `json:"media_type"`
	DownloadStatus DownloadStatus `json:"download_status"`
	DownloadedAt   *time.Time     `json:"downloaded_at,omitempty"`
	StorageURL     *string        `json:"storage_url,omitempty"`
}

// IsExpired возвращает true, если скачанное вложение вышло за окно хранения.
func (a *Attachment) IsExpired(now time.Time) bool {
	if a.DownloadStatus != DownloadStatusCompleted || a.DownloadedAt == nil {
		return false
	}
	return now.Sub(*a.DownloadedAt) > a.MediaType.RetentionWindow()
}

// Channel — подключённый WhatsApp-канал tenant'а.
type Channel struct {
	ID                    string    `json:"id"`
	EvolutionInstanceName string    `json:"evolution_instance_name"`
	Status                string    `json:"status"`
	SyncStatus            string    `json:"sync_status"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Статусы канала.
const (
	ChannelStatusConnected    = "connected"
	ChannelStatusConnecting   = "connecting"
	ChannelStatusDisconnected = "disconnected"
)

// Статусы синхронизации канала.
const (
	ChannelSyncSynced = "synced"
	ChannelSyncFailed = "failed"
)
