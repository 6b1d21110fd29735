package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueName — имя очереди с предустановленной политикой retry/retention.
type QueueName string

const (
	QueueDefault       QueueName = "default"
	QueueHighPriority  QueueName = "high-priority"
	QueueMediaDownload QueueName = "media-download"
	QueueCleanup       QueueName = "cleanup"
	QueueLowPriority   QueueName = "low-priority"
)

// JobKind — тип job'а; определяет handler и очередь по умолчанию.
type JobKind string

const (
	JobKindTenantProvisioning JobKind = "tenant-provisioning"
	JobKindAttachmentCleanup  JobKind = "attachment-cleanup"
	JobKindChannelSync        JobKind = "channel-sync"
	JobKindCrossOrgLogoSync   JobKind = "cross-org-logo-sync"
)

// SystemOrganization — зарезервированный ключ attachment-cleanup:
// обработать всех активных tenant'ов.
const SystemOrganization = "system"

// Job — единица асинхронной работы.
//
// Key — ключ идемпотентности: пока job с тем же (Kind, Key) находится
// в waiting/active, второй не создаётся.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Queue — очередь, в которую job попал.
	Queue QueueName `json:"queue"`

	// Kind — тип job'а.
	Kind JobKind `json:"kind"`

	// Key — ключ идемпотентности.
	Key string `json:"key"`

	// Payload — типизированная полезная нагрузка в JSON.
	Payload json.RawMessage `json:"payload"`

	// Attempts — количество выполненных попыток.
	Attempts int `json:"attempts"`

	// MaxAttempts — лимит попыток (из preset'а очереди или override).
	MaxAttempts int `json:"max_attempts"`

	// BackoffMs — базовая задержка exponential backoff.
	BackoffMs int64 `json:"backoff_ms"`

	// State — текущее состояние.
	State JobState `json:"state"`

	// LastError — текст последней ошибки handler'а.
	LastError string `json:"last_error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// HeartbeatAt — последнее продление lease активным worker'ом.
	// Active job без свежего heartbeat считается брошенным.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
}

// MarkActive переводит job в active и увеличивает счётчик попыток.
func (j *Job) MarkActive(now time.Time) {
	j.State = JobStateActive
	j.StartedAt = &now
	j.HeartbeatAt = &now
	j.FinishedAt = nil
	j.Attempts++
}

// MarkCompleted переводит job в completed.
func (j *Job) MarkCompleted(now time.Time) {
	j.State = JobStateCompleted
	j.FinishedAt = &now
	j.LastError = ""
}

// MarkFailed переводит job в failed с текстом ошибки.
func (j *Job) MarkFailed(now time.Time, err string) {
	j.State = JobStateFailed
	j.FinishedAt = &now
	j.LastError = err
}

// CanRetry проверяет, осталась ли ещё попытка.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// Backoff возвращает базовую задержку retry.
func (j *Job) Backoff() time.Duration {
	return time.Duration(j.BackoffMs) * time.Millisecond
}

// ProvisionPayload — payload tenant-provisioning.
type ProvisionPayload struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	Slug           string `json:"slug" validate:"required"`
	Tier           string `json:"tier,omitempty"`
}

// CleanupPayload — payload attachment-cleanup.
// OrganizationID == SystemOrganization означает обход всех tenant'ов.
type CleanupPayload struct {
	OrganizationID string `json:"organizationId" validate:"required"`
}

// ChannelSyncPayload — payload channel-sync.
type ChannelSyncPayload struct {
	ChannelID      string `json:"channelId" validate:"required"`
	OrganizationID string `json:"organizationId" validate:"required"`
}

// LogoSyncPayload — payload cross-org-logo-sync.
type LogoSyncPayload struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	LogoURL        string `json:"logoUrl" validate:"required,url"`
}
