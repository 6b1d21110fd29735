package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// JobPruner удаляет завершённые job'ы.
type JobPruner interface {
	Prune(ctx context.Context, queue domain.QueueName, state domain.JobState, keep int, maxAge time.Duration) (int64, error)
}

// Pruner применяет retention preset'ов к завершённым job'ам.
type Pruner struct {
	jobs   JobPruner
	logger *slog.Logger
}

// NewPruner создаёт Pruner.
func NewPruner(store JobPruner, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{jobs: store, logger: logger}
}

// Prune проходит по всем очередям. Ошибка одной очереди не мешает остальным.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)

	for _, preset := range jobs.Presets() {
		for state, ret := range map[domain.JobState]jobs.Retention{
			domain.JobStateCompleted: preset.Completed,
			domain.JobStateFailed:    preset.Failed,
		} {
			if ret.Count == 0 && ret.Age == 0 {
				continue
			}

			n, err := p.jobs.Prune(ctx, preset.Queue, state, ret.Count, ret.Age)
			if err != nil {
				errs = append(errs, fmt.Errorf("prune %s/%s: %w", preset.Queue, state, err))
				continue
			}
			if n > 0 {
				telemetry.JobsPruned.WithLabelValues(string(preset.Queue), string(state)).Add(float64(n))
			}
			total += n
		}
	}

	if total > 0 {
		p.logger.Info("pruned finished jobs", "count", total)
	}
	return total, errors.Join(errs...)
}
