package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec проверяет валидность cron-выражения.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// NextRun вычисляет следующее время запуска после from в часовом поясе loc.
func NextRun(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return schedule.Next(from.In(loc)).UTC(), nil
}

// cronLogger — адаптер slog для robfig/cron.
type cronLogger struct {
	s *Scheduler
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
