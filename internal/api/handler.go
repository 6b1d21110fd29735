package api

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/breaker"
	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/provision"
)

// JobEnqueuer ставит job'ы в очередь.
type JobEnqueuer interface {
	EnqueueProvisioning(ctx context.Context, p domain.ProvisionPayload) (*jobs.Result, error)
	EnqueueCleanup(ctx context.Context, orgID string) (*jobs.Result, error)
	EnqueueChannelSync(ctx context.Context, p domain.ChannelSyncPayload) (*jobs.Result, error)
	EnqueueLogoSync(ctx context.Context, p domain.LogoSyncPayload) (*jobs.Result, error)
}

// JobReader читает job'ы.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// HealthChecker проверяет базу tenant'а.
type HealthChecker interface {
	HealthCheck(ctx context.Context, orgID string) (*provision.HealthReport, error)
}

// HostStore — реестр хостов каталога.
type HostStore interface {
	Create(ctx context.Context, h *domain.DatabaseHost) error
	List(ctx context.Context) ([]domain.DatabaseHost, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// BreakerStats отдаёт состояние breaker'ов.
type BreakerStats interface {
	Stats() []breaker.Stats
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	queue    JobEnqueuer
	jobs     JobReader
	health   HealthChecker
	hosts    HostStore
	breakers BreakerStats
	validate *validator.Validate
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Queue    JobEnqueuer
	Jobs     JobReader
	Health   HealthChecker
	Hosts    HostStore
	Breakers BreakerStats
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// В сообщениях об ошибках — имена полей из JSON
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		queue:    cfg.Queue,
		jobs:     cfg.Jobs,
		health:   cfg.Health,
		hosts:    cfg.Hosts,
		breakers: cfg.Breakers,
		validate: validate,
		logger:   logger,
	}
}
