package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/mq"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// handleJobEnqueued обрабатывает уведомление job.enqueued.
//
// Ошибка handler'а job'а фиксируется в БД, сообщение при этом ack'ается.
// Nack с requeue только когда не удалось записать состояние job'а.
func (w *Worker) handleJobEnqueued(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.JobEnqueuedPayload](msg)
	if err != nil {
		w.logger.Error("failed to parse job.enqueued payload", "error", err)
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}

	if err := w.Process(ctx, payload.JobID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if isSkip(err) {
			w.logger.Debug("job not processed", "job_id", payload.JobID, "reason", err)
			return nil
		}
		return err
	}
	return nil
}

// isSkip — job уже забран, завершён или удалён.
func isSkip(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotWaiting)
}

// Process забирает job и выполняет его до completed или failed.
//
// Сначала занимается слот worker'а: вместе consumer и polling выполняют
// не больше Concurrency job'ов. Пока handler работает, lease job'а
// продлевается, и RequeueStale другого worker'а его не трогает.
func (w *Worker) Process(ctx context.Context, jobID uuid.UUID) error {
	if err := w.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.slots.Release(1)

	job, err := w.jobs.Claim(ctx, jobID, w.now())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		case errors.Is(err, repo.ErrInvalidState):
			return fmt.Errorf("%w: %s", ErrJobNotWaiting, jobID)
		}
		return fmt.Errorf("claim job: %w", err)
	}

	logger := telemetry.WithJobID(w.logger, job.ID.String(), string(job.Kind))
	logger.Info("job started", "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	stopHeartbeat := w.keepAlive(ctx, job.ID, logger)
	execErr := w.executeWithRetry(ctx, job)
	stopHeartbeat()

	// Остановка процесса посреди job'а: возвращаем в waiting, его доделает другой worker.
	// Прерванная попытка не засчитывается: следующий Claim снова прибавит её.
	if execErr != nil && ctx.Err() != nil {
		if job.Attempts > 0 {
			job.Attempts--
		}
		job.State = domain.JobStateWaiting
		job.LastError = execErr.Error()
		if err := w.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
			return fmt.Errorf("return job to waiting: %w", err)
		}
		logger.Warn("job interrupted", "error", execErr)
		return nil
	}

	if execErr == nil {
		job.MarkCompleted(w.now())
	} else {
		job.MarkFailed(w.now(), execErr.Error())
	}

	if err := w.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("update job to %s: %w", job.State, err)
	}

	telemetry.JobsProcessed.WithLabelValues(string(w.queue), string(job.Kind), string(job.State)).Inc()

	if execErr != nil {
		logger.Warn("job failed", "attempts", job.Attempts, "error", execErr)
	} else {
		logger.Info("job completed", "attempts", job.Attempts)
	}

	return nil
}

// keepAlive продлевает lease job'а каждые heartbeatInterval до вызова stop.
func (w *Worker) keepAlive(ctx context.Context, jobID uuid.UUID, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.jobs.Heartbeat(ctx, jobID, w.now()); err != nil && ctx.Err() == nil {
					logger.Warn("job heartbeat failed", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// executeWithRetry выполняет job, повторяя пока остаются попытки.
//
// Claim уже засчитал первую попытку; каждая следующая увеличивает
// Attempts и сохраняется до ожидания.
func (w *Worker) executeWithRetry(ctx context.Context, job *domain.Job) error {
	handler, err := w.registry.Get(job.Kind)
	if err != nil {
		return err
	}

	for {
		start := time.Now()
		lastErr := handler.Handle(ctx, job)
		telemetry.JobDuration.WithLabelValues(string(w.queue), string(job.Kind)).Observe(time.Since(start).Seconds())

		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil || !job.CanRetry() || !shouldRetry(lastErr) {
			return lastErr
		}

		delay := calculateBackoff(job.Backoff(), job.Attempts)

		w.logger.Debug("retrying job",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"delay", delay,
			"error", lastErr,
		)
		telemetry.JobsRetried.WithLabelValues(string(w.queue), string(job.Kind)).Inc()

		job.Attempts++
		job.LastError = lastErr.Error()
		if err := w.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("update job for retry: %w", err)
		}

		if err := w.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
}

// shouldRetry — ошибки разбора payload'а и отсутствие handler'а не лечатся повтором.
func shouldRetry(err error) bool {
	return !errors.Is(err, ErrPermanent) &&
		!errors.Is(err, ErrUnknownKind) &&
		!errors.Is(err, jobs.ErrInvalidPayload)
}

// calculateBackoff вычисляет задержку перед retry.
//
// delay = base * 2^(attempt-1), не больше maxBackoff.
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}

	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
