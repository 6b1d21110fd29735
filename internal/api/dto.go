package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
)

// Tenant DTOs

// CreateTenantRequest — запрос на provisioning организации.
type CreateTenantRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Slug           string `json:"slug" validate:"required,hostname_rfc1123,max=48"`
	Tier           string `json:"tier,omitempty" validate:"omitempty,alphanum,max=32"`
}

// Host DTOs

// CreateHostRequest — регистрация Postgres-хоста.
type CreateHostRequest struct {
	Name           string `json:"name" validate:"required,max=64"`
	Host           string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int    `json:"port" validate:"required,gte=1,lte=65535"`
	Region         string `json:"region" validate:"max=32"`
	Tier           string `json:"tier" validate:"omitempty,alphanum,max=32"`
	MaxTenants     int    `json:"max_tenants" validate:"required,gte=1"`
	DiskCapacityGB int    `json:"disk_capacity_gb" validate:"gte=0"`
	IsDefault      bool   `json:"is_default"`
}

// UpdateHostStatusRequest — смена статуса хоста.
type UpdateHostStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active draining offline"`
}

// Job DTOs

// CleanupRequest — запрос на очистку вложений.
// organization_id = "system" — все активные tenant'ы.
type CleanupRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
}

// ChannelSyncRequest — запрос на синхронизацию канала.
type ChannelSyncRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
}

// LogoRequest — новый логотип организации.
type LogoRequest struct {
	LogoURL string `json:"logo_url" validate:"required,url"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	Kind        string     `json:"kind"`
	Key         string     `json:"key"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j *domain.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Queue:       string(j.Queue),
		Kind:        string(j.Kind),
		Key:         j.Key,
		State:       string(j.State),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
}

// EnqueueResponse — результат постановки job'а.
//
// Created = false, если вернулся уже выполняющийся job с тем же ключом.
type EnqueueResponse struct {
	Job     JobResponse `json:"job"`
	Created bool        `json:"created"`
}

// EnqueueFromResult конвертирует jobs.Result в EnqueueResponse.
func EnqueueFromResult(r *jobs.Result) EnqueueResponse {
	return EnqueueResponse{Job: JobFromDomain(r.Job), Created: r.Created}
}
