package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey — ключ advisory lock'а планировщика.
const LockKey int64 = 7_424_242

// AdvisoryLeader — лидерство через pg_try_advisory_lock.
//
// Lock сессионный, поэтому держится на выделенном соединении из пула,
// пока процесс жив или не вызван Release.
type AdvisoryLeader struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisoryLeader создаёт AdvisoryLeader.
func NewAdvisoryLeader(pool *pgxpool.Pool, key int64) *AdvisoryLeader {
	return &AdvisoryLeader{pool: pool, key: key}
}

// IsLeader пытается стать лидером (или подтверждает лидерство).
func (l *AdvisoryLeader) IsLeader(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		// Соединение могло умереть вместе с lock'ом
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release отпускает lock, если он был взят.
func (l *AdvisoryLeader) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return
	}
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		slog.Warn("failed to release advisory lock", "key", l.key, "error", err)
	}
	l.conn.Release()
	l.conn = nil
}
