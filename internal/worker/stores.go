package worker

import (
	"context"
	"time"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// TenantStore — операции над базой tenant'а, нужные handler'ам.
type TenantStore interface {
	ExpireAttachments(ctx context.Context, mediaType domain.MediaType, cutoff time.Time) (int64, error)
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)
	UpdateChannelStatus(ctx context.Context, channelID, status, syncStatus string) error
	UpdateMirroredAvatars(ctx context.Context, sourceOrgID, avatarURL string) ([]string, error)
}

// StoreSource открывает базу tenant'а по organization id.
type StoreSource func(ctx context.Context, orgID string) (TenantStore, error)

// TenantLister — активные tenant'ы каталога.
type TenantLister interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}

// FromStores адаптирует tenantdb.Stores к StoreSource.
func FromStores(s *tenantdb.Stores) StoreSource {
	return func(ctx context.Context, orgID string) (TenantStore, error) {
		store, err := s.For(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
