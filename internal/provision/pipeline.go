package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/telemetry"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// TenantStore — операции каталога над tenant'ами.
type TenantStore interface {
	Create(ctx context.Context, t *domain.Tenant) error
	GetByOrganizationID(ctx context.Context, orgID string) (*domain.Tenant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TenantStatus) error
	AssignHost(ctx context.Context, id, hostID uuid.UUID) error
}

// HostStore — операции каталога над хостами.
type HostStore interface {
	Allocate(ctx context.Context) (*domain.DatabaseHost, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DatabaseHost, error)
}

// LogStore — журналы каталога.
type LogStore interface {
	MigrationLogger
	LatestMigration(ctx context.Context, tenantID uuid.UUID) (string, error)
	InsertActivity(ctx context.Context, entry *domain.ActivityLog) error
}

// SchemaMigrator применяет схему к базе tenant'а.
type SchemaMigrator interface {
	Apply(ctx context.Context, db tenantdb.DB, tenantID uuid.UUID) error
}

// TableConverter переводит таблицу на партиции.
type TableConverter interface {
	Convert(ctx context.Context, db tenantdb.DB, table PartitionedTable) error
}

// PoolSource — источник рабочих пулов tenant'ов (для health-check).
type PoolSource interface {
	Get(ctx context.Context, orgID string) (tenantdb.DB, error)
}

// Params — параметры provisioning'а.
type Params struct {
	OrganizationID string
	Slug           string
	Tier           string
}

// Pipeline создаёт базу tenant'а от записи в каталоге до готовой схемы.
type Pipeline struct {
	tenants   TenantStore
	hosts     HostStore
	logs      LogStore
	admin     DatabaseAdmin
	migrator  SchemaMigrator
	converter TableConverter
	pools     PoolSource
	open      tenantdb.Opener
	creds     tenantdb.Credentials
	tables    []PartitionedTable
	progress  ProgressReporter
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Config — конфигурация Pipeline.
type Config struct {
	Tenants   TenantStore
	Hosts     HostStore
	Logs      LogStore
	Admin     DatabaseAdmin
	Migrator  SchemaMigrator
	Converter TableConverter
	Pools     PoolSource

	// Opener — открытие миграционного соединения (default: tenantdb.OpenPgxPool).
	Opener      tenantdb.Opener
	Credentials tenantdb.Credentials

	// Tables — таблицы для партиционирования (default: DefaultPartitionedTables()).
	Tables []PartitionedTable

	// Progress — доставка шагов клиенту (default: NopReporter).
	Progress ProgressReporter

	Logger *slog.Logger
}

// migrationProfile — отдельное соединение для миграций: одно, без prepared statements.
var migrationProfile = tenantdb.PoolProfile{
	MaxConns:       1,
	IdleTimeout:    time.Minute,
	ConnectTimeout: 10 * time.Second,
}

// NewPipeline создаёт Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	open := cfg.Opener
	if open == nil {
		open = tenantdb.OpenPgxPool
	}

	tables := cfg.Tables
	if tables == nil {
		tables = DefaultPartitionedTables()
	}

	progress := cfg.Progress
	if progress == nil {
		progress = NopReporter{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		tenants:   cfg.Tenants,
		hosts:     cfg.Hosts,
		logs:      cfg.Logs,
		admin:     cfg.Admin,
		migrator:  cfg.Migrator,
		converter: cfg.Converter,
		pools:     cfg.Pools,
		open:      open,
		creds:     cfg.Credentials,
		tables:    tables,
		progress:  progress,
		logger:    logger,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// Provision создаёт (или досоздаёт после сбоя) базу организации.
//
// Уже активный tenant возвращается как есть. Второй параллельный вызов
// для той же организации в этом процессе получает ErrProvisioningInFlight;
// между процессами единственность обеспечивает ключ job'а.
func (p *Pipeline) Provision(ctx context.Context, params Params) (*domain.Tenant, error) {
	if !p.acquire(params.OrganizationID) {
		return nil, fmt.Errorf("%w: %s", ErrProvisioningInFlight, params.OrganizationID)
	}
	defer p.release(params.OrganizationID)

	logger := telemetry.WithOrgID(p.logger, params.OrganizationID)
	start := p.now()

	tenant, err := p.register(ctx, params)
	if err != nil {
		telemetry.ProvisioningDuration.WithLabelValues("error").Observe(p.now().Sub(start).Seconds())
		p.report(ctx, params.OrganizationID, StepRegister, StepFailed, genericFailureMessage)
		return nil, &TenantProvisioningError{OrganizationID: params.OrganizationID, Step: StepRegister, Cause: err}
	}
	if tenant.IsActive() {
		logger.Info("tenant already provisioned")
		return tenant, nil
	}

	if step, err := p.run(ctx, tenant); err != nil {
		p.fail(ctx, tenant, step, err)
		telemetry.ProvisioningDuration.WithLabelValues("error").Observe(p.now().Sub(start).Seconds())
		return nil, &TenantProvisioningError{OrganizationID: tenant.OrganizationID, Step: step, Cause: err}
	}

	elapsed := p.now().Sub(start)
	telemetry.ProvisioningDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	logger.Info("tenant provisioned", "database", tenant.DatabaseName(), "elapsed", elapsed)
	return tenant, nil
}

func (p *Pipeline) acquire(orgID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[orgID]; busy {
		return false
	}
	p.inflight[orgID] = struct{}{}
	return true
}

func (p *Pipeline) release(orgID string) {
	p.mu.Lock()
	delete(p.inflight, orgID)
	p.mu.Unlock()
}

// register находит или создаёт запись tenant'а и переводит её в provisioning.
func (p *Pipeline) register(ctx context.Context, params Params) (*domain.Tenant, error) {
	tenant, err := p.tenants.GetByOrganizationID(ctx, params.OrganizationID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		tier := params.Tier
		if tier == "" {
			tier = domain.DefaultTier
		}
		tenant = &domain.Tenant{
			ID:             uuid.New(),
			OrganizationID: params.OrganizationID,
			Slug:           params.Slug,
			Status:         domain.TenantStatusProvisioning,
			Tier:           tier,
			CreatedAt:      p.now(),
		}
		if err := p.tenants.Create(ctx, tenant); err != nil {
			return nil, fmt.Errorf("create tenant: %w", err)
		}
		return tenant, nil
	default:
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}

	switch tenant.Status {
	case domain.TenantStatusActive, domain.TenantStatusProvisioning:
		return tenant, nil
	case domain.TenantStatusSuspended:
		return nil, fmt.Errorf("%w: tenant is suspended", repo.ErrInvalidState)
	default:
		if err := p.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusProvisioning); err != nil {
			return nil, fmt.Errorf("reset tenant status: %w", err)
		}
		tenant.Status = domain.TenantStatusProvisioning
		return tenant, nil
	}
}

// run выполняет шаги после регистрации. Возвращает шаг, на котором произошла ошибка.
func (p *Pipeline) run(ctx context.Context, tenant *domain.Tenant) (Step, error) {
	var host *domain.DatabaseHost

	steps := []struct {
		name Step
		fn   func() error
	}{
		{StepAllocateHost, func() (err error) {
			host, err = p.allocateHost(ctx, tenant)
			return err
		}},
		{StepCreateDatabase, func() error {
			return p.admin.CreateDatabase(ctx, host, tenant.DatabaseName())
		}},
		{StepMigrate, func() error {
			return p.withMigrationDB(ctx, tenant, host, func(db tenantdb.DB) error {
				return p.migrator.Apply(ctx, db, tenant.ID)
			})
		}},
		{StepPartition, func() error {
			return p.withMigrationDB(ctx, tenant, host, func(db tenantdb.DB) error {
				for _, table := range p.tables {
					if err := p.converter.Convert(ctx, db, table); err != nil {
						return err
					}
				}
				return nil
			})
		}},
		{StepFinalize, func() error {
			return p.finalize(ctx, tenant)
		}},
	}

	for _, step := range steps {
		p.report(ctx, tenant.OrganizationID, step.name, StepStarted, "")
		if err := step.fn(); err != nil {
			return step.name, err
		}
		p.report(ctx, tenant.OrganizationID, step.name, StepCompleted, "")
	}
	return "", nil
}

// allocateHost переиспользует уже назначенный хост (повторный запуск) или занимает новый.
func (p *Pipeline) allocateHost(ctx context.Context, tenant *domain.Tenant) (*domain.DatabaseHost, error) {
	if tenant.DatabaseHostID != nil {
		return p.hosts.GetByID(ctx, *tenant.DatabaseHostID)
	}

	host, err := p.hosts.Allocate(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.tenants.AssignHost(ctx, tenant.ID, host.ID); err != nil {
		return nil, err
	}
	tenant.DatabaseHostID = &host.ID
	return host, nil
}

func (p *Pipeline) withMigrationDB(ctx context.Context, tenant *domain.Tenant, host *domain.DatabaseHost, fn func(tenantdb.DB) error) error {
	dsn := tenantdb.BuildDSN(host.Host, host.Port, tenant.DatabaseName(), p.creds)
	db, err := p.open(ctx, dsn, migrationProfile)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func (p *Pipeline) finalize(ctx context.Context, tenant *domain.Tenant) error {
	if err := p.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusActive); err != nil {
		return err
	}
	tenant.Status = domain.TenantStatusActive

	p.activity(ctx, &domain.ActivityLog{
		TenantID:    &tenant.ID,
		Action:      "tenant.provisioned",
		Category:    domain.ActivityCategoryProvisioning,
		Severity:    domain.SeverityInfo,
		Description: fmt.Sprintf("database %s is ready", tenant.DatabaseName()),
		Metadata:    map[string]any{"host_id": tenant.DatabaseHostID},
	})
	return nil
}

// fail помечает tenant'а как error и пишет детали в activity log.
// Клиенту уходит только общий текст.
func (p *Pipeline) fail(ctx context.Context, tenant *domain.Tenant, step Step, cause error) {
	// Запись статуса не должна зависеть от отмены исходного контекста.
	ctx = context.WithoutCancel(ctx)

	p.logger.Error("tenant provisioning failed",
		"organization_id", tenant.OrganizationID,
		"step", step,
		"error", cause,
	)

	if err := p.tenants.UpdateStatus(ctx, tenant.ID, domain.TenantStatusError); err != nil {
		p.logger.Error("failed to mark tenant as error", "organization_id", tenant.OrganizationID, "error", err)
	}
	tenant.Status = domain.TenantStatusError

	p.activity(ctx, &domain.ActivityLog{
		TenantID:    &tenant.ID,
		Action:      "tenant.provisioning_failed",
		Category:    domain.ActivityCategoryProvisioning,
		Severity:    domain.SeverityError,
		Description: cause.Error(),
		Metadata:    map[string]any{"step": string(step)},
	})

	p.report(ctx, tenant.OrganizationID, step, StepFailed, genericFailureMessage)
}

func (p *Pipeline) activity(ctx context.Context, entry *domain.ActivityLog) {
	entry.CreatedAt = p.now()
	if err := p.logs.InsertActivity(ctx, entry); err != nil {
		p.logger.Warn("failed to write activity log", "action", entry.Action, "error", err)
	}
}

func (p *Pipeline) report(ctx context.Context, orgID string, step Step, status StepStatus, msg string) {
	p.progress.Report(ctx, Progress{OrganizationID: orgID, Step: step, Status: status, Message: msg})
}
