package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chatplane/internal/domain"
)

// LogRepo — журналы миграций и активности (только вставка).
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// StartMigration записывает начало попытки миграции и возвращает ID записи.
func (r *LogRepo) StartMigration(ctx context.Context, tenantID uuid.UUID, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO migration_logs (tenant_id, migration_name, status, started_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, tenantID, name, domain.MigrationStatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert migration log: %w", err)
	}
	return id, nil
}

// FinishMigration фиксирует результат попытки миграции.
func (r *LogRepo) FinishMigration(ctx context.Context, id int64, status domain.MigrationStatus, errMsg string, elapsed time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE migration_logs
		SET status = $2, completed_at = now(), error = $3, execution_time_ms = $4
		WHERE id = $1
	`, id, status, nullString(errMsg), elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("finish migration log: %w", err)
	}
	return nil
}

// LatestMigration возвращает имя последней успешной миграции tenant'а.
func (r *LogRepo) LatestMigration(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT migration_name
		FROM migration_logs
		WHERE tenant_id = $1 AND status = $2
		ORDER BY migration_name DESC
		LIMIT 1
	`, tenantID, domain.MigrationStatusSuccess).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest migration: %w", err)
	}
	return name, nil
}

// InsertActivity добавляет запись аудита.
func (r *LogRepo) InsertActivity(ctx context.Context, entry *domain.ActivityLog) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_logs (tenant_id, action, category, severity, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.TenantID, entry.Action, entry.Category, entry.Severity, entry.Description, metadata, createdAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
