package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chatplane/internal/domain"
)

// TenantRepo — репозиторий каталога tenant'ов.
type TenantRepo struct {
	pool *pgxpool.Pool
}

// NewTenantRepo создаёт новый TenantRepo.
func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

const tenantColumns = `id, organization_id, slug, database_host_id, status, tier, created_at`

// Create создаёт запись tenant'а.
// Возвращает ErrAlreadyExists, если организация уже зарегистрирована.
func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (id, organization_id, slug, database_host_id, status, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.OrganizationID, t.Slug, t.DatabaseHostID, t.Status, t.Tier, t.CreatedAt)
	if IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// GetByOrganizationID возвращает tenant'а по идентификатору организации.
func (r *TenantRepo) GetByOrganizationID(ctx context.Context, orgID string) (*domain.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE organization_id = $1`, orgID))
}

// GetByID возвращает tenant'а по ID записи.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

// ListActive возвращает всех активных tenant'ов.
func (r *TenantRepo) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY created_at`,
		domain.TenantStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// UpdateStatus меняет статус tenant'а.
func (r *TenantRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TenantStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown tenant status %q", ErrInvalidState, status)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignHost привязывает tenant'а к хосту.
func (r *TenantRepo) AssignHost(ctx context.Context, id, hostID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET database_host_id = $2, updated_at = now() WHERE id = $1`, id, hostID)
	if err != nil {
		return fmt.Errorf("assign host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Slug,
		&t.DatabaseHostID,
		&t.Status,
		&t.Tier,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}
