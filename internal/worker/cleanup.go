package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// CleanupResult — итог прохода attachment-cleanup.
type CleanupResult struct {
	// Expired — сколько вложений истекло, по organization id.
	Expired map[string]int64

	// Failed — tenant'ы, которые не удалось обработать.
	Failed []string
}

// Total возвращает общее число истёкших вложений.
func (r *CleanupResult) Total() int64 {
	var n int64
	for _, v := range r.Expired {
		n += v
	}
	return n
}

// CleanupHandler выполняет attachment-cleanup.
//
// Вложение истекает, когда с момента скачивания прошло больше окна
// его типа: 48 часов для видео, 90 дней для остального. Сами объекты
// удаляет lifecycle-правило бакета, здесь только обновляются строки.
type CleanupHandler struct {
	tenants TenantLister
	stores  StoreSource
	now     func() time.Time
	logger  *slog.Logger
}

// NewCleanupHandler создаёт handler. now == nil означает time.Now.
func NewCleanupHandler(tenants TenantLister, stores StoreSource, now func() time.Time, logger *slog.Logger) *CleanupHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupHandler{tenants: tenants, stores: stores, now: now, logger: logger}
}

func (h *CleanupHandler) Handle(ctx context.Context, job *domain.Job) error {
	p, err := jobs.DecodePayload[domain.CleanupPayload](job.Payload)
	if err != nil {
		return err
	}

	res, err := h.Run(ctx, p.OrganizationID)
	if err != nil {
		return err
	}

	h.logger.Info("attachment cleanup finished",
		"organization_id", p.OrganizationID,
		"expired", res.Total(),
		"tenants", len(res.Expired),
		"failed_tenants", len(res.Failed),
	)
	return nil
}

// Run истекает вложения одной организации или, для SystemOrganization,
// всех активных tenant'ов. Во втором случае сбой одного tenant'а не
// останавливает остальных.
func (h *CleanupHandler) Run(ctx context.Context, orgID string) (*CleanupResult, error) {
	res := &CleanupResult{Expired: make(map[string]int64)}

	if orgID != domain.SystemOrganization {
		n, err := h.cleanTenant(ctx, orgID)
		if err != nil {
			return nil, err
		}
		res.Expired[orgID] = n
		return res, nil
	}

	tenants, err := h.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	for _, t := range tenants {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		n, err := h.cleanTenant(ctx, t.OrganizationID)
		if err != nil {
			telemetry.WithOrgID(h.logger, t.OrganizationID).Warn("tenant cleanup failed", "error", err)
			res.Failed = append(res.Failed, t.OrganizationID)
			continue
		}
		res.Expired[t.OrganizationID] = n
	}

	return res, nil
}

func (h *CleanupHandler) cleanTenant(ctx context.Context, orgID string) (int64, error) {
	store, err := h.stores(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("open tenant %s: %w", orgID, err)
	}

	now := h.now()
	var total int64
	for _, mt := range domain.MediaTypes() {
		n, err := store.ExpireAttachments(ctx, mt, now.Add(-mt.RetentionWindow()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
