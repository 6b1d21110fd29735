package telemetry

import (
	"context"
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер сервиса.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — для production
//   - "text" — для локальной разработки
//
// Поле service добавляется ко всем записям.
func SetupLogger(service string) *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}

type ctxKey string

// CtxLogger — ключ для логгера в контексте.
const CtxLogger ctxKey = "logger"

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithOrgID возвращает логгер с добавленным organization_id.
func WithOrgID(logger *slog.Logger, orgID string) *slog.Logger {
	return logger.With("organization_id", orgID)
}

// WithJobID возвращает логгер с добавленными job_id и kind.
func WithJobID(logger *slog.Logger, jobID, kind string) *slog.Logger {
	return logger.With("job_id", jobID, "kind", kind)
}

// WithQueue возвращает логгер с добавленным queue.
func WithQueue(logger *slog.Logger, queue string) *slog.Logger {
	return logger.With("queue", queue)
}
