package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Chatplane/internal/repo"
)

// HealthStatus — итог проверки.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthReport — результат HealthCheck.
type HealthReport struct {
	OrganizationID string       `json:"organization_id"`
	Status         HealthStatus `json:"status"`
	DatabaseExists bool         `json:"database_exists"`
	CanConnect     bool         `json:"can_connect"`
	SchemaVersion  string       `json:"schema_version,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// HealthCheck проверяет базу tenant'а: существует ли она, можно ли
// подключиться через рабочий пул и какая версия схемы применена.
//
// Ошибка возвращается только если tenant'а нельзя прочитать из каталога;
// проблемы самой базы отражаются в отчёте.
func (p *Pipeline) HealthCheck(ctx context.Context, orgID string) (*HealthReport, error) {
	tenant, err := p.tenants.GetByOrganizationID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{OrganizationID: orgID, Status: Unhealthy}

	if tenant.DatabaseHostID == nil {
		report.Error = "no database host assigned"
		return report, nil
	}

	host, err := p.hosts.GetByID(ctx, *tenant.DatabaseHostID)
	if err != nil {
		return nil, fmt.Errorf("lookup host: %w", err)
	}

	report.DatabaseExists, err = p.admin.DatabaseExists(ctx, host, tenant.DatabaseName())
	if err != nil {
		report.Error = "database existence check failed"
		p.logger.Warn("health check: database exists failed", "organization_id", orgID, "error", err)
	}

	if report.DatabaseExists {
		if db, err := p.pools.Get(ctx, orgID); err != nil {
			report.Error = "cannot connect"
			p.logger.Warn("health check: connect failed", "organization_id", orgID, "error", err)
		} else if err := db.Ping(ctx); err != nil {
			report.Error = "ping failed"
		} else {
			report.CanConnect = true
		}
	}

	version, err := p.logs.LatestMigration(ctx, tenant.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	report.SchemaVersion = version

	if report.DatabaseExists && report.CanConnect {
		report.Status = Healthy
	}
	return report, nil
}
