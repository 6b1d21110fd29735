package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// ContactEvents публикует обновления контактов.
type ContactEvents interface {
	PublishContactUpdated(ctx context.Context, e domain.ContactUpdatedEvent) error
}

// LogoSyncResult — итог cross-org-logo-sync.
type LogoSyncResult struct {
	UpdatedContacts int
	Tenants         int
	Failed          []string
}

// LogoSyncHandler выполняет cross-org-logo-sync: переносит новый логотип
// организации в аватары её зеркальных контактов у всех остальных tenant'ов.
type LogoSyncHandler struct {
	tenants TenantLister
	stores  StoreSource
	events  ContactEvents
	logger  *slog.Logger
}

// NewLogoSyncHandler создаёт handler.
func NewLogoSyncHandler(tenants TenantLister, stores StoreSource, events ContactEvents, logger *slog.Logger) *LogoSyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogoSyncHandler{tenants: tenants, stores: stores, events: events, logger: logger}
}

func (h *LogoSyncHandler) Handle(ctx context.Context, job *domain.Job) error {
	p, err := jobs.DecodePayload[domain.LogoSyncPayload](job.Payload)
	if err != nil {
		return err
	}

	res, err := h.Sync(ctx, p)
	if err != nil {
		return err
	}

	h.logger.Info("logo sync finished",
		"organization_id", p.OrganizationID,
		"updated_contacts", res.UpdatedContacts,
		"tenants", res.Tenants,
		"failed_tenants", len(res.Failed),
	)
	return nil
}

// Sync обходит все активные tenant'ы, кроме источника. Ошибка
// возвращается только если не удалось прочитать каталог.
func (h *LogoSyncHandler) Sync(ctx context.Context, p domain.LogoSyncPayload) (*LogoSyncResult, error) {
	tenants, err := h.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	res := &LogoSyncResult{}
	for _, t := range tenants {
		if t.OrganizationID == p.OrganizationID {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		logger := telemetry.WithOrgID(h.logger, t.OrganizationID)

		ids, err := h.syncTenant(ctx, t.OrganizationID, p)
		if err != nil {
			logger.Warn("logo sync failed for tenant", "error", err)
			res.Failed = append(res.Failed, t.OrganizationID)
			continue
		}

		res.Tenants++
		res.UpdatedContacts += len(ids)

		for _, id := range ids {
			ev := domain.ContactUpdatedEvent{
				OrganizationID: t.OrganizationID,
				ContactID:      id,
				AvatarURL:      p.LogoURL,
			}
			if err := h.events.PublishContactUpdated(ctx, ev); err != nil {
				logger.Warn("failed to publish contact update", "contact_id", id, "error", err)
			}
		}
	}

	return res, nil
}

func (h *LogoSyncHandler) syncTenant(ctx context.Context, orgID string, p domain.LogoSyncPayload) ([]string, error) {
	store, err := h.stores(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return store.UpdateMirroredAvatars(ctx, p.OrganizationID, p.LogoURL)
}
