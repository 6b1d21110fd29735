// Package mq предоставляет транспорт job'ов поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchanges, очереди preset'ов, DLQ
//   - publisher.go  — публикация уведомлений о новых job'ах
//   - consumer.go   — потребление с ограниченным параллелизмом
//
// Сообщение несёт только ссылку на job (job_id, kind); состояние,
// попытки и payload живут в таблице jobs каталога. Потерянное
// сообщение подхватывается polling'ом worker'а.
//
// Exchanges:
//   - chatplane.jobs — direct, routing key = имя preset'а очереди
//   - chatplane.dlq  — dead letter для всех очередей job'ов
package mq
