package repo

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.up.sql
var catalogMigrations embed.FS

// Migration — один SQL-файл миграции.
type Migration struct {
	// Name — имя файла без суффикса .up.sql (например, 001_catalog).
	Name string

	// SQL — текст миграции.
	SQL string
}

// LoadMigrations читает *.up.sql из dir и сортирует по имени.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Name: strings.TrimSuffix(e.Name(), ".up.sql"),
			SQL:  string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})
	return migrations, nil
}

// Migrate применяет схему каталога.
//
// Применённые миграции фиксируются в schema_migrations; каждая
// выполняется в своей транзакции.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := LoadMigrations(catalogMigrations, "migrations")
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, m.Name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil // уже применена
			}
			_, err = tx.Exec(ctx, m.SQL)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}
