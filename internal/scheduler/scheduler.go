package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
)

// Расписания по умолчанию.
const (
	DefaultCleanupSpec = "0 3 * * *"
	DefaultPruneSpec   = "0 * * * *"
)

// Названия задач.
const (
	TaskAttachmentCleanup = "attachment-cleanup"
	TaskPrune             = "prune"
)

// CleanupEnqueuer ставит attachment-cleanup в очередь.
type CleanupEnqueuer interface {
	EnqueueCleanup(ctx context.Context, orgID string) (*jobs.Result, error)
}

// Pruner удаляет завершённые job'ы по retention.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Leader решает, выполняет ли этот экземпляр задачи.
type Leader interface {
	IsLeader(ctx context.Context) (bool, error)
}

// Scheduler — планировщик периодических задач.
type Scheduler struct {
	jobs   CleanupEnqueuer
	pruner Pruner
	leader Leader
	logger *slog.Logger

	cron    *cron.Cron
	timeout time.Duration
	specs   map[string]string
}

// Config — конфигурация Scheduler.
type Config struct {
	Jobs   CleanupEnqueuer
	Pruner Pruner

	// Leader — если nil, экземпляр всегда лидер.
	Leader Leader

	CleanupSpec string         // default: DefaultCleanupSpec
	PruneSpec   string         // default: DefaultPruneSpec
	Location    *time.Location // default: UTC

	// Timeout — лимит на одну задачу (default: 5m).
	Timeout time.Duration

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	specs := map[string]string{
		TaskAttachmentCleanup: orDefault(cfg.CleanupSpec, DefaultCleanupSpec),
		TaskPrune:             orDefault(cfg.PruneSpec, DefaultPruneSpec),
	}

	s := &Scheduler{
		jobs:    cfg.Jobs,
		pruner:  cfg.Pruner,
		leader:  cfg.Leader,
		logger:  logger,
		timeout: timeout,
		specs:   specs,
	}

	cl := cronLogger{s: s}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for name, spec := range specs {
		if err := ValidateSpec(spec); err != nil {
			return nil, fmt.Errorf("task %s: %w", name, err)
		}
		task := name
		if _, err := s.cron.AddFunc(spec, func() { s.run(task) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	return s, nil
}

// Start запускает cron в фоне.
func (s *Scheduler) Start() {
	for name, spec := range s.specs {
		s.logger.Info("task scheduled", "task", name, "spec", spec)
	}
	s.cron.Start()
}

// Stop останавливает cron и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// run выполняет задачу по расписанию, если экземпляр — лидер.
func (s *Scheduler) run(task string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.leader != nil {
		ok, err := s.leader.IsLeader(ctx)
		if err != nil {
			s.logger.Error("leader check failed", "task", task, "error", err)
			return
		}
		if !ok {
			s.logger.Debug("not a leader, skipping", "task", task)
			return
		}
	}

	if err := s.RunTask(ctx, task); err != nil {
		s.logger.Error("scheduled task failed", "task", task, "error", err)
	}
}

// RunTask выполняет задачу немедленно, без проверки лидерства.
func (s *Scheduler) RunTask(ctx context.Context, task string) error {
	switch task {
	case TaskAttachmentCleanup:
		res, err := s.jobs.EnqueueCleanup(ctx, domain.SystemOrganization)
		if err != nil {
			return fmt.Errorf("enqueue system cleanup: %w", err)
		}
		s.logger.Info("system cleanup enqueued", "job_id", res.Job.ID, "created", res.Created)
		return nil

	case TaskPrune:
		n, err := s.pruner.Prune(ctx)
		s.logger.Info("retention prune finished", "pruned", n)
		return err
	}

	return fmt.Errorf("unknown task %q", task)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
