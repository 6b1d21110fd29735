package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// TenantLookup — чтение tenant'а из каталога.
type TenantLookup interface {
	GetByOrganizationID(ctx context.Context, orgID string) (*domain.Tenant, error)
}

// HostLookup — чтение хоста из каталога.
type HostLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DatabaseHost, error)
}

// Manager — реестр пулов баз tenant'ов в рамках процесса.
//
// Инвариант: на один organization id в процессе существует не больше
// одного пула. Первое обращение к незакэшированному id выполняется
// через singleflight: конкурентные вызовы ждут одно и то же создание.
//
// Manager не делает retry сам: ошибка подключения возвращается как
// TenantDatabaseError, повтор — забота вызывающего.
type Manager struct {
	tenants TenantLookup
	hosts   HostLookup
	open    Opener
	profile PoolProfile
	creds   Credentials
	logger  *slog.Logger

	mu    sync.RWMutex
	pools map[string]DB
	group singleflight.Group

	// gens и epoch растут при Close/CloseAll; create сверяет их до
	// записи пула в кэш.
	gens  map[string]uint64
	epoch uint64
}

// Config — конфигурация Manager.
type Config struct {
	Tenants TenantLookup
	Hosts   HostLookup

	// Opener — функция открытия пула (default: OpenPgxPool).
	Opener Opener

	// Profile — профиль пула (default: ProxyProfile()).
	Profile PoolProfile

	Credentials Credentials
	Logger      *slog.Logger
}

// NewManager создаёт новый Manager.
func NewManager(cfg Config) *Manager {
	open := cfg.Opener
	if open == nil {
		open = OpenPgxPool
	}

	profile := cfg.Profile
	if profile.MaxConns <= 0 {
		profile = ProxyProfile()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		tenants: cfg.Tenants,
		hosts:   cfg.Hosts,
		open:    open,
		profile: profile,
		creds:   cfg.Credentials,
		logger:  logger,
		pools:   make(map[string]DB),
		gens:    make(map[string]uint64),
	}
}

// Get возвращает пул базы организации, создавая его при первом обращении.
//
// Отмена ctx прекращает ожидание, но не создание: пул, который уже
// открывается для других вызывающих, доводится до конца.
func (m *Manager) Get(ctx context.Context, orgID string) (DB, error) {
	if db, ok := m.cached(orgID); ok {
		return db, nil
	}

	ch := m.group.DoChan(orgID, func() (any, error) {
		if db, ok := m.cached(orgID); ok {
			return db, nil
		}
		return m.create(context.WithoutCancel(ctx), orgID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(DB), nil
	}
}

func (m *Manager) cached(orgID string) (DB, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.pools[orgID]
	return db, ok
}

func (m *Manager) generation(orgID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch + m.gens[orgID]
}

// create ищет tenant'а в каталоге и открывает пул.
//
// Если пока пул открывался, организацию закрыли через Close, пул
// собран по устаревшей записи каталога: он закрывается, и создание
// повторяется с нуля.
func (m *Manager) create(ctx context.Context, orgID string) (DB, error) {
	logger := telemetry.WithOrgID(m.logger, orgID)
	gen := m.generation(orgID)

	tenant, err := m.tenants.GetByOrganizationID(ctx, orgID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &TenantNotFoundError{OrganizationID: orgID}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant %s: %w", orgID, err)
	}
	if !tenant.IsActive() {
		return nil, &TenantNotActiveError{OrganizationID: orgID, Status: tenant.Status}
	}
	if tenant.DatabaseHostID == nil {
		return nil, &TenantDatabaseError{OrganizationID: orgID, Cause: errors.New("no database host assigned")}
	}

	host, err := m.hosts.GetByID(ctx, *tenant.DatabaseHostID)
	if err != nil {
		return nil, &TenantDatabaseError{OrganizationID: orgID, Cause: fmt.Errorf("lookup host: %w", err)}
	}

	dsn := BuildDSN(host.Host, host.Port, tenant.DatabaseName(), m.creds)

	connectCtx, cancel := context.WithTimeout(ctx, m.profile.ConnectTimeout)
	defer cancel()

	db, err := m.open(connectCtx, dsn, m.profile)
	if err != nil {
		telemetry.TenantPoolCreations.WithLabelValues("error").Inc()
		logger.Warn("tenant pool open failed", "host", host.Name, "error", err)
		return nil, &TenantDatabaseError{OrganizationID: orgID, Cause: err}
	}

	m.mu.Lock()
	if m.epoch+m.gens[orgID] != gen {
		m.mu.Unlock()
		db.Close()
		telemetry.TenantPoolCreations.WithLabelValues("stale").Inc()
		logger.Info("tenant pool closed while opening, reopening")
		return m.create(ctx, orgID)
	}
	m.pools[orgID] = db
	size := len(m.pools)
	m.mu.Unlock()

	telemetry.TenantPoolCreations.WithLabelValues("ok").Inc()
	telemetry.TenantPools.Set(float64(size))
	logger.Info("tenant pool opened", "host", host.Name, "database", tenant.DatabaseName())

	return db, nil
}

// Close закрывает и забывает пул организации.
// Следующий Get заново прочитает каталог (например, после переноса на другой хост).
// Создание, которое шло в момент Close, результат в кэш не положит.
func (m *Manager) Close(orgID string) {
	m.mu.Lock()
	m.gens[orgID]++
	db, ok := m.pools[orgID]
	delete(m.pools, orgID)
	size := len(m.pools)
	m.mu.Unlock()

	if !ok {
		return
	}
	db.Close()
	telemetry.TenantPools.Set(float64(size))
	m.logger.Info("tenant pool closed", "organization_id", orgID)
}

// CloseAll закрывает все пулы. Вызывается при остановке процесса.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.epoch++
	pools := m.pools
	m.pools = make(map[string]DB)
	m.mu.Unlock()

	for _, db := range pools {
		db.Close()
	}
	telemetry.TenantPools.Set(0)
	m.logger.Info("all tenant pools closed", "count", len(pools))
}

// Size возвращает число закэшированных пулов.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}
