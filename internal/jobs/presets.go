package jobs

import (
	"time"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Retention — сколько хранить завершённые job'ы. Ноль в поле — без ограничения.
type Retention struct {
	Count int
	Age   time.Duration
}

// Preset — политика очереди.
type Preset struct {
	Queue     domain.QueueName
	Attempts  int
	Backoff   time.Duration
	Completed Retention
	Failed    Retention
}

var presets = []Preset{
	{
		Queue:     domain.QueueDefault,
		Attempts:  3,
		Backoff:   2 * time.Second,
		Completed: Retention{Count: 100, Age: 24 * time.Hour},
		Failed:    Retention{Count: 500},
	},
	{
		Queue:     domain.QueueHighPriority,
		Attempts:  5,
		Backoff:   time.Second,
		Completed: Retention{Count: 100, Age: time.Hour},
		Failed:    Retention{Count: 200},
	},
	{
		Queue:     domain.QueueMediaDownload,
		Attempts:  3,
		Backoff:   5 * time.Second,
		Completed: Retention{Count: 1000, Age: 24 * time.Hour},
		Failed:    Retention{Age: 7 * 24 * time.Hour},
	},
	{
		Queue:     domain.QueueCleanup,
		Attempts:  2,
		Backoff:   10 * time.Second,
		Completed: Retention{Count: 500, Age: 7 * 24 * time.Hour},
		Failed:    Retention{Age: 30 * 24 * time.Hour},
	},
	{
		Queue:     domain.QueueLowPriority,
		Attempts:  3,
		Backoff:   5 * time.Second,
		Completed: Retention{Count: 1000, Age: 7 * 24 * time.Hour},
		Failed:    Retention{Age: 14 * 24 * time.Hour},
	},
}

// Presets возвращает все preset'ы.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// QueueNames возвращает имена всех очередей.
func QueueNames() []domain.QueueName {
	names := make([]domain.QueueName, len(presets))
	for i, p := range presets {
		names[i] = p.Queue
	}
	return names
}

// PresetFor возвращает preset очереди.
func PresetFor(queue domain.QueueName) (Preset, bool) {
	for _, p := range presets {
		if p.Queue == queue {
			return p, true
		}
	}
	return Preset{}, false
}
