package tenantdb

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB — то, что компоненты используют от пула tenant'а.
// *pgxpool.Pool реализует его напрямую.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolProfile — параметры пула.
type PoolProfile struct {
	MaxConns       int32
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// ProxyProfile — профиль для баз за пулером в transaction-mode.
//
// Пул крошечный: сотни tenant'ов делят ограниченный бюджет backend-соединений
// пулера. Prepared statements и кэши описаний выключены, потому что
// соседние запросы могут попасть в разные backend-сессии.
func ProxyProfile() PoolProfile {
	return PoolProfile{
		MaxConns:       3,
		IdleTimeout:    30 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Opener открывает пул по DSN. Подменяется в тестах.
type Opener func(ctx context.Context, dsn string, profile PoolProfile) (DB, error)

// OpenPgxPool — Opener по умолчанию.
func OpenPgxPool(ctx context.Context, dsn string, profile PoolProfile) (DB, error) {
	cfg, err := ParsePoolConfig(dsn, profile)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, profile.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// ParsePoolConfig применяет профиль к конфигурации pgxpool.
func ParsePoolConfig(dsn string, profile PoolProfile) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = profile.MaxConns
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = profile.IdleTimeout
	cfg.ConnConfig.ConnectTimeout = profile.ConnectTimeout

	// Без server-side prepared statements.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.ConnConfig.StatementCacheCapacity = 0
	cfg.ConnConfig.DescriptionCacheCapacity = 0

	return cfg, nil
}

// Credentials — учётные данные и адрес для баз tenant'ов.
type Credentials struct {
	// HostOverride — host:port пулера; если пусто, берётся хост из каталога.
	HostOverride string
	User         string
	Password     string
	SSLMode      string
}

// BuildDSN собирает строку подключения к базе на хосте.
func BuildDSN(host string, port int, database string, creds Credentials) string {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if creds.HostOverride != "" {
		addr = creds.HostOverride
	}

	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.User, creds.Password),
		Host:     addr,
		Path:     "/" + database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
