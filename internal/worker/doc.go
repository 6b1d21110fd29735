// Package worker выполняет job'ы очередей Chatplane.
//
// # Обзор
//
// Runtime привязан к одной очереди (preset'у) и:
//
//   - получает уведомления о job'ах из RabbitMQ (event-driven)
//   - периодически забирает waiting job'ы из БД (polling fallback)
//   - возвращает в waiting job'ы, застрявшие в active после падения процесса
//   - выполняет не больше Concurrency job'ов одновременно
//   - делает retry с exponential backoff в процессе
//
// Job выполняется тем, кто его забрал (JobRepo.Claim), поэтому дубли
// сообщений и пересечение с polling'ом безопасны.
//
// # Handlers
//
// Handler выбирается по kind:
//
//   - tenant-provisioning  — ProvisionHandler, provision.Pipeline
//   - attachment-cleanup   — CleanupHandler, истечение вложений по окнам типа медиа
//   - channel-sync         — ChannelSyncHandler, состояние инстанса из gateway через breaker
//   - cross-org-logo-sync  — LogoSyncHandler, аватары зеркальных контактов во всех tenant'ах
//
// Обработчики, обходящие tenant'ов, изолируют ошибки: сбой одного
// tenant'а логируется и пропускается, job падает только если не удалось
// прочитать каталог.
//
// # Retry
//
// delay = backoff * 2^(attempt-1), не больше maxBackoff. Ошибки
// ErrPermanent и jobs.ErrInvalidPayload не ретраятся. После исчерпания
// попыток job остаётся в failed для разбора оператором; Pruner удаляет
// завершённые job'ы по retention preset'а.
package worker
