package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrProvisioningInFlight — provisioning этой организации уже выполняется в процессе.
	ErrProvisioningInFlight = errors.New("provisioning already in flight")

	// ErrProvisioningFailed — sentinel для TenantProvisioningError.
	ErrProvisioningFailed = errors.New("tenant provisioning failed")

	// ErrNoPartitions — после maintenance у таблицы нет ни одной партиции.
	ErrNoPartitions = errors.New("no partitions created")

	// ErrRowCountMismatch — после копирования число строк не совпало.
	ErrRowCountMismatch = errors.New("row count mismatch")
)

// TenantProvisioningError — ошибка одного из шагов provisioning'а.
type TenantProvisioningError struct {
	OrganizationID string
	Step           Step
	Cause          error
}

func (e *TenantProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: step %s: %v", e.OrganizationID, e.Step, e.Cause)
}

func (e *TenantProvisioningError) Unwrap() error { return e.Cause }

func (e *TenantProvisioningError) Is(target error) bool { return target == ErrProvisioningFailed }

// PartitionStepError — ошибка шага конвертации таблицы.
type PartitionStepError struct {
	Table string
	Step  string
	Cause error
}

func (e *PartitionStepError) Error() string {
	return fmt.Sprintf("partition %s: %s: %v", e.Table, e.Step, e.Cause)
}

func (e *PartitionStepError) Unwrap() error { return e.Cause }
