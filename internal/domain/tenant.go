package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant — запись каталога об изолированной базе организации.
//
// Одна строка на организацию. Создаётся в начале provisioning'а
// со статусом provisioning и дальше меняет только статус.
type Tenant struct {
	// ID — идентификатор записи каталога.
	ID uuid.UUID `json:"id"`

	// OrganizationID — идентификатор организации (ключ маршрутизации).
	OrganizationID string `json:"organization_id"`

	// Slug — человекочитаемое имя организации.
	Slug string `json:"slug"`

	// DatabaseHostID — физический хост, на котором живёт база tenant'а.
	// Nil, пока хост не выделен.
	DatabaseHostID *uuid.UUID `json:"database_host_id,omitempty"`

	// Status — текущий статус.
	Status TenantStatus `json:"status"`

	// Tier — тарифный уровень (влияет на выбор хоста).
	Tier string `json:"tier"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// IsActive возвращает true, если к базе tenant'а можно подключаться.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// DatabaseName возвращает имя базы tenant'а.
func (t *Tenant) DatabaseName() string {
	return TenantDatabaseName(t.OrganizationID)
}

// maxIdentifierLen — лимит длины идентификатора в Postgres.
const maxIdentifierLen = 63

// TenantDatabaseName детерминированно строит имя базы из organization id.
//
// Всё, кроме [a-z0-9], заменяется на '_', результат обрезается до лимита Postgres.
func TenantDatabaseName(organizationID string) string {
	var b strings.Builder
	b.WriteString("tenant_")
	for _, r := range strings.ToLower(organizationID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return name
}

// DatabaseHost — физический Postgres-хост (обычно за пулером в transaction-mode).
type DatabaseHost struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	Region         string    `json:"region"`
	Tier           string    `json:"tier"`
	MaxTenants     int       `json:"max_tenants"`
	CurrentTenants int       `json:"current_tenants"`
	DiskCapacityGB int       `json:"disk_capacity_gb"`
	Status         string    `json:"status"`
	IsDefault      bool      `json:"is_default"`
}

// DefaultTier — тариф tenant'а и хоста, если не указан явно.
const DefaultTier = "standard"

// Статусы хоста.
const (
	// HostStatusActive — хост принимает новых tenant'ов.
	HostStatusActive = "active"

	// HostStatusDraining — существующие tenant'ы работают, новые не размещаются.
	HostStatusDraining = "draining"

	HostStatusOffline = "offline"
)

// HasCapacity возвращает true, если на хосте есть место под ещё одного tenant'а.
func (h *DatabaseHost) HasCapacity() bool {
	return h.Status == HostStatusActive && h.CurrentTenants < h.MaxTenants
}

// MigrationLog — запись об одной попытке миграции (append-only).
type MigrationLog struct {
	ID              int64           `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	MigrationName   string          `json:"migration_name"`
	Status          MigrationStatus `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// Activity categories.
const (
	ActivityCategoryProvisioning = "provisioning"
	ActivityCategoryMaintenance  = "maintenance"
)

// ActivityLog — запись аудита (append-only).
type ActivityLog struct {
	// TenantID — nil для глобальных действий.
	TenantID    *uuid.UUID     `json:"tenant_id,omitempty"`
	Action      string         `json:"action"`
	Category    string         `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
