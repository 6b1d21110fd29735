package tenantdb

import (
	"errors"
	"fmt"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Sentinel-ошибки для errors.Is.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantNotActive = errors.New("tenant not active")
	ErrTenantDatabase  = errors.New("tenant database unavailable")
	ErrNotFound        = errors.New("record not found")
)

// TenantNotFoundError — организация отсутствует в каталоге.
type TenantNotFoundError struct {
	OrganizationID string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %s not found", e.OrganizationID)
}

func (e *TenantNotFoundError) Is(target error) bool { return target == ErrTenantNotFound }

// TenantNotActiveError — tenant есть, но подключаться к нему нельзя.
type TenantNotActiveError struct {
	OrganizationID string
	Status         domain.TenantStatus
}

func (e *TenantNotActiveError) Error() string {
	return fmt.Sprintf("tenant %s is %s", e.OrganizationID, e.Status)
}

func (e *TenantNotActiveError) Is(target error) bool { return target == ErrTenantNotActive }

// TenantDatabaseError — физическое подключение к базе tenant'а не удалось.
type TenantDatabaseError struct {
	OrganizationID string
	Cause          error
}

func (e *TenantDatabaseError) Error() string {
	return fmt.Sprintf("tenant %s database: %v", e.OrganizationID, e.Cause)
}

func (e *TenantDatabaseError) Unwrap() error { return e.Cause }

func (e *TenantDatabaseError) Is(target error) bool { return target == ErrTenantDatabase }
