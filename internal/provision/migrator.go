package provision

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

//go:embed migrations/*.up.sql
var tenantMigrations embed.FS

// MigrationLogger — журнал попыток миграций в каталоге.
type MigrationLogger interface {
	StartMigration(ctx context.Context, tenantID uuid.UUID, name string) (int64, error)
	FinishMigration(ctx context.Context, id int64, status domain.MigrationStatus, errMsg string, elapsed time.Duration) error
}

// Migrator применяет схему tenant'а.
//
// Применённые миграции хранятся в schema_migrations самой базы tenant'а,
// поэтому повторный запуск выполняет только недостающие. Каждая попытка
// пишет строку в migration_logs каталога.
type Migrator struct {
	migrations []repo.Migration
	logs       MigrationLogger
	logger     *slog.Logger
	now        func() time.Time
}

// NewMigrator создаёт Migrator со встроенными миграциями tenant'а.
func NewMigrator(logs MigrationLogger, logger *slog.Logger) (*Migrator, error) {
	migrations, err := repo.LoadMigrations(tenantMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return newMigrator(migrations, logs, logger), nil
}

func newMigrator(migrations []repo.Migration, logs MigrationLogger, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{migrations: migrations, logs: logs, logger: logger, now: time.Now}
}

// Latest возвращает имя последней миграции (версия схемы).
func (m *Migrator) Latest() string {
	if len(m.migrations) == 0 {
		return ""
	}
	return m.migrations[len(m.migrations)-1].Name
}

// Apply применяет недостающие миграции. Останавливается на первой ошибке.
func (m *Migrator) Apply(ctx context.Context, db tenantdb.DB, tenantID uuid.UUID) error {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.applied(ctx, db)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if applied[mig.Name] {
			continue
		}
		if err := m.applyOne(ctx, db, tenantID, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context, db tenantdb.DB) (map[string]bool, error) {
	rows, err := db.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration name: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) applyOne(ctx context.Context, db tenantdb.DB, tenantID uuid.UUID, mig repo.Migration) error {
	logID, err := m.logs.StartMigration(ctx, tenantID, mig.Name)
	if err != nil {
		return err
	}

	start := m.now()
	runErr := m.exec(ctx, db, mig)
	elapsed := m.now().Sub(start)

	status := domain.MigrationStatusSuccess
	errMsg := ""
	if runErr != nil {
		status = domain.MigrationStatusFailed
		errMsg = runErr.Error()
	}

	if err := m.logs.FinishMigration(ctx, logID, status, errMsg, elapsed); err != nil {
		m.logger.Warn("failed to finish migration log", "migration", mig.Name, "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("migration %s: %w", mig.Name, runErr)
	}

	m.logger.Debug("migration applied", "migration", mig.Name, "elapsed", elapsed)
	return nil
}

// exec выполняет миграцию и отметку о ней в одной транзакции.
func (m *Migrator) exec(ctx context.Context, db tenantdb.DB, mig repo.Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, mig.Name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}
