package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Chatplane/internal/domain"
)

// JobRepo — репозиторий состояния job'ов.
//
// Транспорт job'ов — RabbitMQ, но источник истины по состоянию,
// попыткам и retention — таблица jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, queue, kind, job_key, payload, attempts, max_attempts, backoff_ms,
	state, last_error, created_at, started_at, finished_at, heartbeat_at`

// Create сохраняет новый job.
//
// Если для (kind, key) уже есть job в waiting/active, новый не создаётся:
// возвращается существующий и created=false.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, kind, job_key, payload, attempts, max_attempts, backoff_ms, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (kind, job_key) WHERE state IN ('waiting', 'active') DO NOTHING
	`, job.ID, job.Queue, job.Kind, job.Key, []byte(job.Payload), job.Attempts,
		job.MaxAttempts, job.BackoffMs, job.State, job.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return job, true, nil
	}

	existing, err := r.GetInFlight(ctx, job.Kind, job.Key)
	if errors.Is(err, ErrNotFound) {
		// Конкурирующий job успел завершиться между INSERT и SELECT.
		return nil, false, fmt.Errorf("%w: job %s/%s finished concurrently", ErrInvalidState, job.Kind, job.Key)
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetInFlight возвращает незавершённый job по ключу идемпотентности.
func (r *JobRepo) GetInFlight(ctx context.Context, kind domain.JobKind, key string) (*domain.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE kind = $1 AND job_key = $2 AND state IN ('waiting', 'active')
	`, kind, key))
}

// Update сохраняет изменяемые поля job'а.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET attempts = $2, state = $3, last_error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`, job.ID, job.Attempts, job.State, nullString(job.LastError), job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim атомарно переводит waiting job в active и увеличивает attempts.
//
// Один job может прийти и из брокера, и из polling'а; выполняет его
// только тот, кто успешно забрал. Остальные получают ErrInvalidState.
func (r *JobRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE jobs
		SET state = 'active', attempts = attempts + 1, started_at = $2, heartbeat_at = $2, finished_at = NULL
		WHERE id = $1 AND state = 'waiting'
		RETURNING `+jobColumns, id, now))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: job %s is not waiting", ErrInvalidState, id)
	}
	return job, err
}

// Heartbeat продлевает lease активного job'а.
//
// ErrInvalidState — job уже не active (его вернули в waiting или
// завершили): lease потерян.
func (r *JobRepo) Heartbeat(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET heartbeat_at = $2
		WHERE id = $1 AND state = 'active'
	`, id, now)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not active", ErrInvalidState, id)
	}
	return nil
}

// RequeueStale возвращает в waiting job'ы, чей heartbeat не продлевался
// с heartbeatBefore (процесс worker'а упал посреди выполнения).
func (r *JobRepo) RequeueStale(ctx context.Context, queue domain.QueueName, heartbeatBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'waiting'
		WHERE queue = $1 AND state = 'active'
		  AND COALESCE(heartbeat_at, started_at) < $2
	`, queue, heartbeatBefore)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListWaiting возвращает waiting job'ы очереди, созданные раньше olderThan.
// Используется polling-fallback'ом, если сообщение в брокере потерялось.
func (r *JobRepo) ListWaiting(ctx context.Context, queue domain.QueueName, olderThan time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE queue = $1 AND state = 'waiting' AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, queue, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list waiting jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Prune удаляет завершённые job'ы сверх лимита.
//
// keep > 0 — оставить не больше keep последних; maxAge > 0 — удалить
// всё старше maxAge. Любой из лимитов может быть нулём.
func (r *JobRepo) Prune(ctx context.Context, queue domain.QueueName, state domain.JobState, keep int, maxAge time.Duration) (int64, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("%w: prune non-terminal state %q", ErrInvalidState, state)
	}
	if keep <= 0 && maxAge <= 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM (
				SELECT id, finished_at,
				       row_number() OVER (ORDER BY finished_at DESC) AS rn
				FROM jobs
				WHERE queue = $1 AND state = $2
			) ranked
			WHERE ($3::bigint > 0 AND rn > $3::bigint)
			   OR ($4::double precision > 0
			       AND finished_at < now() - make_interval(secs => $4::double precision))
		)
	`, queue, state, keep, maxAge.Seconds())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var payload []byte
	var lastError *string

	err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Kind,
		&job.Key,
		&payload,
		&job.Attempts,
		&job.MaxAttempts,
		&job.BackoffMs,
		&job.State,
		&lastError,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.HeartbeatAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Payload = payload
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}
