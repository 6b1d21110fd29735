// Package tenantdb даёт доступ к изолированным базам tenant'ов.
//
// Структура:
//   - manager.go — Manager: organization id → закэшированный пул (single-flight)
//   - pool.go    — профиль пула под transaction-mode пулер, сборка DSN
//   - store.go   — запросы к таблицам tenant'а (contact, chat, attachment, channel)
//   - errors.go  — типизированные ошибки поиска и подключения
//
// Кэш ключуется organization id, а не строкой подключения: перенос
// tenant'а на другой хост делается явным Close(orgID).
package tenantdb
