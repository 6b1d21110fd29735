// Package cli реализует инструмент командной строки Chatplane.
//
// # Обзор
//
// CLI — клиентская утилита для административного API. Работает через
// HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Chatplane API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	res, err := client.CreateTenant(cli.CreateTenantRequest{...})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: chatplane job show ID --json | jq .
//
// ## Commands
//
//   - tenant: create, health
//   - host: add, list, status
//   - job: show (с --wait), cleanup, channel-sync, logo-sync
//   - breaker: list
//
// Каждая группа создаётся через фабричную функцию (NewTenantCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
