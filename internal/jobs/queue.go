package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Store — сохранение job'ов с coalescing по ключу.
type Store interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, bool, error)
}

// Notifier будит worker'ы очереди.
type Notifier interface {
	PublishJob(ctx context.Context, job *domain.Job) error
}

// Options переопределяют preset для одного job'а.
type Options struct {
	// Queue — очередь вместо очереди kind'а по умолчанию.
	Queue domain.QueueName

	// Attempts, Backoff — вместо значений preset'а.
	Attempts int
	Backoff  time.Duration
}

// Result — итог Enqueue.
type Result struct {
	Job *domain.Job

	// Created — false, если вернулся уже находящийся в работе job с тем же ключом.
	Created bool
}

// Config — зависимости Queue.
type Config struct {
	Store    Store
	Notifier Notifier
	Now      func() time.Time
	Logger   *slog.Logger
}

// Queue ставит job'ы в очереди.
type Queue struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewQueue создаёт Queue. Notifier может быть nil: тогда job подхватит polling.
func NewQueue(cfg Config) *Queue {
	q := &Queue{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if q.now == nil {
		q.now = time.Now
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Enqueue сохраняет job и публикует уведомление в брокер.
//
// Ошибка публикации не считается ошибкой Enqueue: job уже в таблице,
// worker найдёт его polling'ом.
func (q *Queue) Enqueue(ctx context.Context, kind domain.JobKind, payload any, opts Options) (*Result, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	key, err := KeyFor(kind, raw)
	if err != nil {
		return nil, err
	}

	queue := opts.Queue
	if queue == "" {
		queue, _ = DefaultQueue(kind)
	}
	preset, ok := PresetFor(queue)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}

	attempts := preset.Attempts
	if opts.Attempts > 0 {
		attempts = opts.Attempts
	}
	backoff := preset.Backoff
	if opts.Backoff > 0 {
		backoff = opts.Backoff
	}

	job := &domain.Job{
		ID:          uuid.New(),
		Queue:       queue,
		Kind:        kind,
		Key:         key,
		Payload:     raw,
		MaxAttempts: attempts,
		BackoffMs:   backoff.Milliseconds(),
		State:       domain.JobStateWaiting,
		CreatedAt:   q.now(),
	}

	stored, created, err := q.store.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := q.logger.With("job_id", stored.ID, "kind", kind, "key", key, "queue", queue)
	if !created {
		logger.Info("job already in flight", "state", stored.State)
		return &Result{Job: stored, Created: false}, nil
	}

	if q.notifier != nil {
		if err := q.notifier.PublishJob(ctx, stored); err != nil {
			logger.Warn("failed to publish job, relying on polling", "error", err)
		}
	}

	logger.Info("job enqueued")
	return &Result{Job: stored, Created: true}, nil
}

// EnqueueProvisioning ставит tenant-provisioning (ключ — organizationId).
func (q *Queue) EnqueueProvisioning(ctx context.Context, p domain.ProvisionPayload) (*Result, error) {
	return q.Enqueue(ctx, domain.JobKindTenantProvisioning, p, Options{})
}

// EnqueueCleanup ставит attachment-cleanup для организации или для всех (SystemOrganization).
func (q *Queue) EnqueueCleanup(ctx context.Context, orgID string) (*Result, error) {
	return q.Enqueue(ctx, domain.JobKindAttachmentCleanup, domain.CleanupPayload{OrganizationID: orgID}, Options{})
}

// EnqueueChannelSync ставит channel-sync (ключ — channelId).
func (q *Queue) EnqueueChannelSync(ctx context.Context, p domain.ChannelSyncPayload) (*Result, error) {
	return q.Enqueue(ctx, domain.JobKindChannelSync, p, Options{})
}

// EnqueueLogoSync ставит cross-org-logo-sync (ключ — organizationId).
func (q *Queue) EnqueueLogoSync(ctx context.Context, p domain.LogoSyncPayload) (*Result, error) {
	return q.Enqueue(ctx, domain.JobKindCrossOrgLogoSync, p, Options{})
}
