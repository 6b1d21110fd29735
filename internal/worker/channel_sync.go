package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/gateway"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// InstanceStates — состояние инстансов во внешнем gateway.
type InstanceStates interface {
	ConnectionState(ctx context.Context, instance string) (*gateway.InstanceState, error)
}

// ChannelEvents публикует результат синхронизации.
type ChannelEvents interface {
	PublishChannelSync(ctx context.Context, e domain.ChannelSyncEvent) error
}

// ChannelSyncHandler выполняет channel-sync.
type ChannelSyncHandler struct {
	stores  StoreSource
	gateway InstanceStates
	events  ChannelEvents
	logger  *slog.Logger
}

// NewChannelSyncHandler создаёт handler.
func NewChannelSyncHandler(stores StoreSource, gw InstanceStates, events ChannelEvents, logger *slog.Logger) *ChannelSyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSyncHandler{stores: stores, gateway: gw, events: events, logger: logger}
}

func (h *ChannelSyncHandler) Handle(ctx context.Context, job *domain.Job) error {
	p, err := jobs.DecodePayload[domain.ChannelSyncPayload](job.Payload)
	if err != nil {
		return err
	}
	_, err = h.Sync(ctx, p)
	return err
}

// Sync запрашивает состояние инстанса канала и сохраняет его.
//
// Недоступный gateway (в том числе открытый breaker) — ошибка для
// retry; канал при этом помечается sync_status=failed. Удалённый в
// gateway инстанс — канал disconnected, без retry. Отсутствие канала в
// базе не лечится повтором, остальные ошибки базы — лечатся.
func (h *ChannelSyncHandler) Sync(ctx context.Context, p domain.ChannelSyncPayload) (*domain.ChannelSyncEvent, error) {
	store, err := h.stores(ctx, p.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("open tenant %s: %w", p.OrganizationID, err)
	}

	ch, err := store.GetChannel(ctx, p.ChannelID)
	if errors.Is(err, tenantdb.ErrNotFound) {
		return nil, fmt.Errorf("%w: channel %s: %w", ErrPermanent, p.ChannelID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", p.ChannelID, err)
	}

	ev := domain.ChannelSyncEvent{
		OrganizationID: p.OrganizationID,
		ChannelID:      ch.ID,
	}

	state, err := h.gateway.ConnectionState(ctx, ch.EvolutionInstanceName)
	switch {
	case err == nil:
		ev.Status = channelStatus(state.State)
		ev.SyncStatus = domain.ChannelSyncSynced
	case errors.Is(err, gateway.ErrInstanceNotFound):
		ev.Status = domain.ChannelStatusDisconnected
		ev.SyncStatus = domain.ChannelSyncFailed
	default:
		if uerr := store.UpdateChannelStatus(ctx, ch.ID, ch.Status, domain.ChannelSyncFailed); uerr != nil {
			h.logger.Warn("failed to mark channel sync failed", "channel_id", ch.ID, "error", uerr)
		}
		return nil, fmt.Errorf("connection state %s: %w", ch.EvolutionInstanceName, err)
	}

	if err := store.UpdateChannelStatus(ctx, ch.ID, ev.Status, ev.SyncStatus); err != nil {
		return nil, err
	}

	if err := h.events.PublishChannelSync(ctx, ev); err != nil {
		h.logger.Warn("failed to publish channel sync", "channel_id", ch.ID, "error", err)
	}

	return &ev, nil
}

// channelStatus переводит состояние инстанса gateway в статус канала.
func channelStatus(state string) string {
	switch state {
	case gateway.StateOpen:
		return domain.ChannelStatusConnected
	case gateway.StateConnecting:
		return domain.ChannelStatusConnecting
	default:
		return domain.ChannelStatusDisconnected
	}
}
