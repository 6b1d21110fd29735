// Package telemetry обеспечивает наблюдаемость сервисов.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (job'ы, breaker, пулы tenant'ов, fanout)
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
