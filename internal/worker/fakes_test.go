package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/gateway"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// memJobs — JobStore в памяти.
type memJobs struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*domain.Job
	updates []domain.Job
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	m := &memJobs{jobs: make(map[uuid.UUID]*domain.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Claim(_ context.Context, id uuid.UUID, now time.Time) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if j.State != domain.JobStateWaiting {
		return nil, repo.ErrInvalidState
	}
	j.MarkActive(now)
	cp := *j
	return &cp, nil
}

// Update, как и SQL-версия, не трогает heartbeat_at.
func (m *memJobs) Update(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	if old, ok := m.jobs[job.ID]; ok {
		cp.HeartbeatAt = old.HeartbeatAt
	}
	m.jobs[job.ID] = &cp
	m.updates = append(m.updates, cp)
	return nil
}

func (m *memJobs) ListWaiting(_ context.Context, queue domain.QueueName, olderThan time.Time, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Queue == queue && j.State == domain.JobStateWaiting && j.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) Heartbeat(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if j.State != domain.JobStateActive {
		return repo.ErrInvalidState
	}
	j.HeartbeatAt = &now
	return nil
}

func (m *memJobs) RequeueStale(_ context.Context, queue domain.QueueName, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Queue != queue || j.State != domain.JobStateActive {
			continue
		}
		beat := j.HeartbeatAt
		if beat == nil {
			beat = j.StartedAt
		}
		if beat != nil && beat.Before(before) {
			j.State = domain.JobStateWaiting
			n++
		}
	}
	return n, nil
}

func (m *memJobs) get(id uuid.UUID) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func newJob(kind domain.JobKind, payload any, maxAttempts int) *domain.Job {
	raw, _ := json.Marshal(payload)
	return &domain.Job{
		ID:          uuid.New(),
		Queue:       domain.QueueDefault,
		Kind:        kind,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		BackoffMs:   1000,
		State:       domain.JobStateWaiting,
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

// testClock — часы, которые тест двигает вручную.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memTenantStore — база tenant'а в памяти.
type memTenantStore struct {
	mu          sync.Mutex
	attachments []*domain.Attachment
	channels    map[string]*domain.Channel
	mirrored    map[string][]string // source org → contact ids
	avatars     map[string]string
	err         error
	channelErr  error
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{
		channels: make(map[string]*domain.Channel),
		mirrored: make(map[string][]string),
		avatars:  make(map[string]string),
	}
}

func (s *memTenantStore) ExpireAttachments(_ context.Context, mt domain.MediaType, cutoff time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.attachments {
		if a.MediaType != mt || a.DownloadStatus != domain.DownloadStatusCompleted {
			continue
		}
		if a.DownloadedAt != nil && a.DownloadedAt.Before(cutoff) {
			a.DownloadStatus = domain.DownloadStatusExpired
			a.StorageURL = nil
			n++
		}
	}
	return n, nil
}

func (s *memTenantStore) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	if s.channelErr != nil {
		return nil, s.channelErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, tenantdb.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *memTenantStore) UpdateChannelStatus(_ context.Context, id, status, syncStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return tenantdb.ErrNotFound
	}
	ch.Status = status
	ch.SyncStatus = syncStatus
	return nil
}

func (s *memTenantStore) UpdateMirroredAvatars(_ context.Context, sourceOrgID, avatarURL string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.mirrored[sourceOrgID]
	for _, id := range ids {
		s.avatars[id] = avatarURL
	}
	return ids, nil
}

// storeSet — StoreSource по карте; отсутствующая организация — ошибка.
type storeSet map[string]*memTenantStore

func (s storeSet) source() StoreSource {
	return func(_ context.Context, orgID string) (TenantStore, error) {
		st, ok := s[orgID]
		if !ok {
			return nil, errors.New("tenant database unreachable")
		}
		return st, nil
	}
}

type staticTenants struct {
	tenants []domain.Tenant
	err     error
}

func (s staticTenants) ListActive(context.Context) ([]domain.Tenant, error) {
	return s.tenants, s.err
}

func activeTenants(orgIDs ...string) staticTenants {
	var out []domain.Tenant
	for _, id := range orgIDs {
		out = append(out, domain.Tenant{ID: uuid.New(), OrganizationID: id, Status: domain.TenantStatusActive})
	}
	return staticTenants{tenants: out}
}

type recordedEvents struct {
	mu       sync.Mutex
	channels []domain.ChannelSyncEvent
	contacts []domain.ContactUpdatedEvent
}

func (r *recordedEvents) PublishChannelSync(_ context.Context, e domain.ChannelSyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, e)
	return nil
}

func (r *recordedEvents) PublishContactUpdated(_ context.Context, e domain.ContactUpdatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, e)
	return nil
}

type stubGateway struct {
	state string
	err   error
}

func (g stubGateway) ConnectionState(_ context.Context, instance string) (*gateway.InstanceState, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.InstanceState{InstanceName: instance, State: g.state}, nil
}
