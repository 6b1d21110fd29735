package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Store — запросы к таблицам одной базы tenant'а.
type Store struct {
	db DB
}

// NewStore создаёт Store поверх пула tenant'а.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Stores выдаёт Store по organization id через Manager.
type Stores struct {
	manager *Manager
}

// NewStores создаёт Stores.
func NewStores(manager *Manager) *Stores {
	return &Stores{manager: manager}
}

// For возвращает Store базы организации.
func (s *Stores) For(ctx context.Context, orgID string) (*Store, error) {
	db, err := s.manager.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

const (
	chatColumns    = `id, contact_id, message_source, status, initiator_agent_id, created_at`
	contactColumns = `id, organization_id, name, avatar_url, metadata, created_at`
)

// GetChat возвращает чат по ID.
func (s *Store) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return scanChat(s.db.QueryRow(ctx, `SELECT `+chatColumns+` FROM chat WHERE id = $1`, chatID))
}

// FindLiveChat возвращает последний open/pending чат контакта.
func (s *Store) FindLiveChat(ctx context.Context, contactID string) (*domain.Chat, error) {
	return scanChat(s.db.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chat
		WHERE contact_id = $1 AND status IN ('open', 'pending')
		ORDER BY created_at DESC
		LIMIT 1
	`, contactID))
}

// GetContact возвращает контакт по ID.
func (s *Store) GetContact(ctx context.Context, contactID string) (*domain.Contact, error) {
	return scanContact(s.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contact WHERE id = $1`, contactID))
}

// FindMirroredContact ищет контакт, который указывает на организацию sourceOrgID.
func (s *Store) FindMirroredContact(ctx context.Context, sourceOrgID string) (*domain.Contact, error) {
	return scanContact(s.db.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contact
		WHERE metadata->>'targetOrganizationId' = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, sourceOrgID))
}

// UpdateMirroredAvatars ставит аватар всем контактам, указывающим на sourceOrgID.
// Возвращает ID обновлённых контактов.
func (s *Store) UpdateMirroredAvatars(ctx context.Context, sourceOrgID, avatarURL string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE contact
		SET avatar_url = $2, updated_at = now()
		WHERE metadata->>'targetOrganizationId' = $1
		RETURNING id
	`, sourceOrgID, avatarURL)
	if err != nil {
		return nil, fmt.Errorf("update mirrored avatars: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ExpireAttachments помечает скачанные вложения типа mediaType, скачанные
// раньше cutoff, как expired и обнуляет storage_url. Объект в хранилище
// не трогается.
func (s *Store) ExpireAttachments(ctx context.Context, mediaType domain.MediaType, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE attachment
		SET download_status = $3, storage_url = NULL
		WHERE media_type = $1
		  AND download_status = $4
		  AND downloaded_at < $2
	`, mediaType, cutoff, domain.DownloadStatusExpired, domain.DownloadStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("expire %s attachments: %w", mediaType, err)
	}
	return tag.RowsAffected(), nil
}

// GetChannel возвращает канал по ID.
func (s *Store) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	var ch domain.Channel
	err := s.db.QueryRow(ctx, `
		SELECT id, evolution_instance_name, status, sync_status, updated_at
		FROM channel
		WHERE id = $1
	`, channelID).Scan(&ch.ID, &ch.EvolutionInstanceName, &ch.Status, &ch.SyncStatus, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

// UpdateChannelStatus сохраняет результат синхронизации канала.
func (s *Store) UpdateChannelStatus(ctx context.Context, channelID, status, syncStatus string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE channel SET status = $2, sync_status = $3, updated_at = now() WHERE id = $1
	`, channelID, status, syncStatus)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChat(row pgx.Row) (*domain.Chat, error) {
	var c domain.Chat
	err := row.Scan(&c.ID, &c.ContactID, &c.MessageSource, &c.Status, &c.InitiatorAgentID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return &c, nil
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var c domain.Contact
	var metadata []byte
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.AvatarURL, &metadata, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	link, err := domain.ParseContactLink(metadata)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", c.ID, err)
	}
	c.Link = link
	return &c, nil
}
