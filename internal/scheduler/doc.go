// Package scheduler запускает периодические задачи Chatplane.
//
// Задачи:
//   - attachment-cleanup{organizationId: "system"} — ежедневно в 03:00
//   - retention prune завершённых job'ов — каждый час
//
// Структура:
//   - scheduler.go — Scheduler поверх robfig/cron
//   - cron.go      — парсинг cron-выражений и вычисление следующего запуска
//   - leader.go    — leader election через pg_try_advisory_lock
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Jobs:   queue,
//	    Pruner: pruner,
//	    Leader: scheduler.NewAdvisoryLeader(pool, scheduler.LockKey),
//	    Logger: logger,
//	})
//	sched.Start()
//	defer sched.Stop()
//
// Экземпляров может быть несколько: задачу выполняет только тот, кто
// держит advisory lock.
package scheduler
