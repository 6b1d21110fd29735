package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// DatabaseAdmin создаёт и проверяет физические базы на хостах.
type DatabaseAdmin interface {
	CreateDatabase(ctx context.Context, host *domain.DatabaseHost, name string) error
	DatabaseExists(ctx context.Context, host *domain.DatabaseHost, name string) (bool, error)
}

// PgAdmin — DatabaseAdmin поверх одиночного административного соединения.
//
// Соединение открывается на каждый вызов и сразу закрывается: CREATE DATABASE
// нельзя выполнить внутри транзакции, а пул из одного соединения здесь
// ничего не даёт.
type PgAdmin struct {
	creds          tenantdb.Credentials
	database       string
	connectTimeout time.Duration
}

// NewPgAdmin создаёт PgAdmin. database — служебная база хоста (обычно postgres).
func NewPgAdmin(creds tenantdb.Credentials, database string, connectTimeout time.Duration) *PgAdmin {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &PgAdmin{creds: creds, database: database, connectTimeout: connectTimeout}
}

func (a *PgAdmin) connect(ctx context.Context, host *domain.DatabaseHost) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(tenantdb.BuildDSN(host.Host, host.Port, a.database, a.creds))
	if err != nil {
		return nil, fmt.Errorf("parse admin dsn: %w", err)
	}
	cfg.ConnectTimeout = a.connectTimeout
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("admin connect %s: %w", host.Name, err)
	}
	return conn, nil
}

// CreateDatabase создаёт базу. Уже существующая база не считается ошибкой.
func (a *PgAdmin) CreateDatabase(ctx context.Context, host *domain.DatabaseHost, name string) error {
	conn, err := a.connect(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if repo.IsDuplicateDatabase(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// DatabaseExists проверяет наличие базы в pg_database.
func (a *PgAdmin) DatabaseExists(ctx context.Context, host *domain.DatabaseHost, name string) (bool, error) {
	conn, err := a.connect(ctx, host)
	if err != nil {
		return false, err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var exists bool
	err = conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	return exists, nil
}
