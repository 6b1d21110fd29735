// Package jobs — сторона постановки job'ов: preset'ы очередей,
// ключи идемпотентности и Queue.Enqueue.
//
// Preset определяет попытки, базовую задержку exponential backoff и
// retention завершённых job'ов:
//
//	preset          attempts  backoff  completed     failed
//	default         3         2s       100 / 24h     500
//	high-priority   5         1s       100 / 1h      200
//	media-download  3         5s       1000 / 24h    7d
//	cleanup         2         10s      500 / 7d      30d
//	low-priority    3         5s       1000 / 7d     14d
//
// Каждый kind имеет очередь по умолчанию и правило вычисления ключа из
// payload. Пока job с тем же (kind, key) в waiting/active, повторный
// Enqueue возвращает существующий job (Created=false).
package jobs
