// Package provision создаёт изолированные базы tenant'ов.
//
// Pipeline.Provision выполняет шаги строго по порядку:
//
//	register → allocate_host → create_database → migrate → partition → finalize
//
// Любая ошибка шага переводит tenant'а в статус error, пишет запись
// в activity log и возвращается как TenantProvisioningError. Частичного
// повтора нет: весь pipeline перезапускается на уровне retry job'а,
// поэтому каждый шаг безопасен для повторного выполнения.
//
// Конвертация таблиц в партиционированные (partition.go) — отдельная
// последовательность именованных шагов с проверкой результата в конце.
package provision
