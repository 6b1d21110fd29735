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

// HostRepo — репозиторий физических Postgres-хостов.
type HostRepo struct {
	pool *pgxpool.Pool
}

// NewHostRepo создаёт новый HostRepo.
func NewHostRepo(pool *pgxpool.Pool) *HostRepo {
	return &HostRepo{pool: pool}
}

const hostColumns = `id, name, host, port, region, tier, max_tenants, current_tenants,
	disk_capacity_gb, status, is_default`

// Create регистрирует хост.
func (r *HostRepo) Create(ctx context.Context, h *domain.DatabaseHost) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO database_hosts (`+hostColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, h.ID, h.Name, h.Host, h.Port, h.Region, h.Tier, h.MaxTenants, h.CurrentTenants,
		h.DiskCapacityGB, h.Status, h.IsDefault)
	if IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert host: %w", err)
	}
	return nil
}

// GetByID возвращает хост по ID.
func (r *HostRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DatabaseHost, error) {
	return scanHost(r.pool.QueryRow(ctx,
		`SELECT `+hostColumns+` FROM database_hosts WHERE id = $1`, id))
}

// List возвращает все хосты.
func (r *HostRepo) List(ctx context.Context) ([]domain.DatabaseHost, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+hostColumns+` FROM database_hosts ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []domain.DatabaseHost
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, *h)
	}
	return hosts, rows.Err()
}

// Allocate выбирает хост со свободным местом и занимает на нём слот.
//
// Предпочитается хост с is_default, затем наименее загруженный.
// Строка блокируется FOR UPDATE SKIP LOCKED, поэтому параллельные
// provisioning'и не превышают max_tenants.
func (r *HostRepo) Allocate(ctx context.Context) (*domain.DatabaseHost, error) {
	var host *domain.DatabaseHost

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		h, err := scanHost(tx.QueryRow(ctx, `
			SELECT `+hostColumns+`
			FROM database_hosts
			WHERE status = $1 AND current_tenants < max_tenants
			ORDER BY is_default DESC, current_tenants ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, domain.HostStatusActive))
		if errors.Is(err, ErrNotFound) {
			return ErrNoCapacity
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE database_hosts SET current_tenants = current_tenants + 1 WHERE id = $1`, h.ID); err != nil {
			return fmt.Errorf("increment tenants: %w", err)
		}
		h.CurrentTenants++
		host = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return host, nil
}

// UpdateStatus меняет статус хоста (health-check, вывод из ротации).
func (r *HostRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE database_hosts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update host status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanHost(row pgx.Row) (*domain.DatabaseHost, error) {
	var h domain.DatabaseHost
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Host,
		&h.Port,
		&h.Region,
		&h.Tier,
		&h.MaxTenants,
		&h.CurrentTenants,
		&h.DiskCapacityGB,
		&h.Status,
		&h.IsDefault,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan host: %w", err)
	}
	return &h, nil
}
