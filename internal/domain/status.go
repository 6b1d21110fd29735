package domain

// TenantStatus — статус tenant'а в каталоге.
//
// Жизненный цикл:
//
//	provisioning → active ⇄ suspended
//	             ↘ error → provisioning (повторный provisioning)
//
// Tenant никогда не удаляется физически: смена статуса — единственная мутация.
type TenantStatus string

const (
	// TenantStatusProvisioning — база создаётся, миграции ещё не завершены.
	TenantStatusProvisioning TenantStatus = "provisioning"

	// TenantStatusActive — база готова, подключения разрешены.
	TenantStatusActive TenantStatus = "active"

	// TenantStatusSuspended — tenant приостановлен оператором.
	TenantStatusSuspended TenantStatus = "suspended"

	// TenantStatusError — provisioning завершился ошибкой.
	TenantStatusError TenantStatus = "error"
)

// IsValid проверяет, что статус входит в допустимый набор.
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusProvisioning, TenantStatusActive, TenantStatusSuspended, TenantStatusError:
		return true
	default:
		return false
	}
}

// JobState — состояние job в очереди.
//
// Жизненный цикл:
//
//	waiting → active → completed
//	                 ↘ failed (после исчерпания attempts)
//	          active → waiting (retry с backoff)
type JobState string

const (
	// JobStateWaiting — job в очереди, ожидает worker'а.
	JobStateWaiting JobState = "waiting"

	// JobStateActive — job обрабатывается worker'ом.
	JobStateActive JobState = "active"

	// JobStateCompleted — handler завершился успешно.
	JobStateCompleted JobState = "completed"

	// JobStateFailed — все попытки исчерпаны, job оставлен для разбора оператором.
	JobStateFailed JobState = "failed"
)

// IsTerminal возвращает true, если состояние финальное.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed:
		return true
	default:
		return false
	}
}

// MigrationStatus — статус одной попытки миграции.
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusRunning MigrationStatus = "running"
	MigrationStatusSuccess MigrationStatus = "success"
	MigrationStatusFailed  MigrationStatus = "failed"
)

// Severity — уровень записи в activity log.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)
