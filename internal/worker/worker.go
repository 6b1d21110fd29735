package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/mq"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultConcurrency  = 5
	defaultStaleAfter   = 30 * time.Minute
	maxBackoff          = 5 * time.Minute
)

// JobStore — операции над таблицей jobs, нужные воркеру.
type JobStore interface {
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListWaiting(ctx context.Context, queue domain.QueueName, olderThan time.Time, limit int) ([]domain.Job, error)
	Heartbeat(ctx context.Context, id uuid.UUID, now time.Time) error
	RequeueStale(ctx context.Context, queue domain.QueueName, heartbeatBefore time.Time) (int64, error)
}

// Worker выполняет job'ы одной очереди.
//
// Worker — stateless компонент системы, который:
//   - получает уведомления из очереди jobs.{queue} (event-driven)
//   - периодически забирает waiting job'ы из БД (polling fallback)
//   - выполняет job handler'ом его kind'а
//   - делает retry с exponential backoff
//
// Несколько экземпляров могут обслуживать одну очередь: job достаётся
// тому, кто успел сделать Claim.
type Worker struct {
	queue    domain.QueueName
	jobs     JobStore
	conn     *mq.Connection
	registry *Registry

	consumer *mq.Consumer

	// slots ограничивает число одновременно выполняемых job'ов
	// для consumer'а и polling'а вместе.
	slots *semaphore.Weighted

	// Configuration
	concurrency       int
	pollInterval      time.Duration
	batchSize         int
	staleAfter        time.Duration
	heartbeatInterval time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Queue    domain.QueueName
	Jobs     JobStore
	Registry *Registry

	// Conn — подключение к RabbitMQ. Если nil, работает только polling.
	Conn *mq.Connection

	Concurrency  int           // одновременных job'ов (default: 5)
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // job'ов за один poll (default: 50)

	// StaleAfter — через сколько без heartbeat active job считается брошенным (default: 30m).
	StaleAfter time.Duration

	// HeartbeatInterval — период продления lease (default: StaleAfter/3).
	HeartbeatInterval time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 || heartbeat >= staleAfter {
		heartbeat = staleAfter / 3
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		queue:        cfg.Queue,
		jobs:         cfg.Jobs,
		conn:         cfg.Conn,
		registry:          registry,
		slots:             semaphore.NewWeighted(int64(concurrency)),
		concurrency:       concurrency,
		pollInterval:      pollInterval,
		batchSize:         batchSize,
		staleAfter:        staleAfter,
		heartbeatInterval: heartbeat,
		now:               now,
		sleep:             sleepCtx,
		logger:            telemetry.WithQueue(logger, string(cfg.Queue)),
	}
}

// Start запускает Worker.
//
// Запускает:
//   - consumer для jobs.{queue}, если есть подключение к RabbitMQ
//   - polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:       mq.QueueFor(w.queue),
			Handler:     w.handleJobEnqueued,
			Concurrency: w.concurrency,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("job consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт текущие job'ы.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем job'ы, созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
//
// Берутся только job'ы старше pollInterval: свежие ещё едут через
// RabbitMQ.
func (w *Worker) poll(ctx context.Context) {
	now := w.now()

	if n, err := w.jobs.RequeueStale(ctx, w.queue, now.Add(-w.staleAfter)); err != nil {
		w.logger.Error("failed to requeue stale jobs", "error", err)
	} else if n > 0 {
		w.logger.Warn("requeued stale jobs", "count", n)
	}

	jobs, err := w.jobs.ListWaiting(ctx, w.queue, now.Add(-w.pollInterval), w.batchSize)
	if err != nil {
		w.logger.Error("failed to list waiting jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("poll found waiting jobs", "count", len(jobs))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i := range jobs {
		id := jobs[i].ID
		g.Go(func() error {
			if err := w.Process(ctx, id); err != nil && !isSkip(err) && ctx.Err() == nil {
				w.logger.Error("failed to process job from poll", "job_id", id, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
