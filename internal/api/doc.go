// Package api содержит административный HTTP API.
//
// Структура:
//   - handler.go        — Handler с DI (очередь job'ов, каталог, breakers, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects (request/response)
//   - tenant_handler.go — provisioning и health tenant'ов
//   - job_handler.go    — постановка job'ов и их просмотр
//   - breaker_handler.go — состояние circuit breaker'ов
//
// Всё долгое выполняется асинхронно: API ставит job и отвечает 202.
package api
