package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
)

// memStore повторяет семантику частичного уникального индекса jobs (kind, job_key).
type memStore struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func (s *memStore) Create(_ context.Context, job *domain.Job) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Kind == job.Kind && j.Key == job.Key && !j.State.IsTerminal() {
			return j, false, nil
		}
	}
	s.jobs = append(s.jobs, job)
	return job, true, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	published []*domain.Job
	err       error
}

func (n *recordingNotifier) PublishJob(_ context.Context, job *domain.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, job)
	return n.err
}

func newTestQueue() (*Queue, *memStore, *recordingNotifier) {
	store := &memStore{}
	notifier := &recordingNotifier{}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	q := NewQueue(Config{
		Store:    store,
		Notifier: notifier,
		Now:      func() time.Time { return now },
	})
	return q, store, notifier
}

func TestPresets(t *testing.T) {
	tests := []struct {
		queue     domain.QueueName
		attempts  int
		backoff   time.Duration
		completed Retention
		failed    Retention
	}{
		{domain.QueueDefault, 3, 2 * time.Second, Retention{100, 24 * time.Hour}, Retention{Count: 500}},
		{domain.QueueHighPriority, 5, time.Second, Retention{100, time.Hour}, Retention{Count: 200}},
		{domain.QueueMediaDownload, 3, 5 * time.Second, Retention{1000, 24 * time.Hour}, Retention{Age: 7 * 24 * time.Hour}},
		{domain.QueueCleanup, 2, 10 * time.Second, Retention{500, 7 * 24 * time.Hour}, Retention{Age: 30 * 24 * time.Hour}},
		{domain.QueueLowPriority, 3, 5 * time.Second, Retention{1000, 7 * 24 * time.Hour}, Retention{Age: 14 * 24 * time.Hour}},
	}

	for _, tt := range tests {
		t.Run(string(tt.queue), func(t *testing.T) {
			p, ok := PresetFor(tt.queue)
			require.True(t, ok)
			assert.Equal(t, tt.attempts, p.Attempts)
			assert.Equal(t, tt.backoff, p.Backoff)
			assert.Equal(t, tt.completed, p.Completed)
			assert.Equal(t, tt.failed, p.Failed)
		})
	}

	assert.Len(t, QueueNames(), 5)
	_, ok := PresetFor("unknown")
	assert.False(t, ok)
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		kind domain.JobKind
		raw  string
		key  string
	}{
		{domain.JobKindTenantProvisioning, `{"organizationId":"org-a","slug":"acme"}`, "org-a"},
		{domain.JobKindAttachmentCleanup, `{"organizationId":"system"}`, "system"},
		{domain.JobKindChannelSync, `{"channelId":"ch-1","organizationId":"org-a"}`, "ch-1"},
		{domain.JobKindCrossOrgLogoSync, `{"organizationId":"org-a","logoUrl":"https://cdn.example.com/a.png"}`, "org-a"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			key, err := KeyFor(tt.kind, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestKeyFor_InvalidPayload(t *testing.T) {
	_, err := KeyFor(domain.JobKindChannelSync, []byte(`{"organizationId":"org-a"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = KeyFor(domain.JobKindCrossOrgLogoSync, []byte(`{"organizationId":"org-a","logoUrl":"not a url"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = KeyFor("bogus", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestQueue_Enqueue_AppliesPreset(t *testing.T) {
	q, _, notifier := newTestQueue()

	res, err := q.EnqueueProvisioning(context.Background(), domain.ProvisionPayload{
		OrganizationID: "org-a", Slug: "acme",
	})
	require.NoError(t, err)
	require.True(t, res.Created)

	job := res.Job
	assert.Equal(t, domain.QueueHighPriority, job.Queue)
	assert.Equal(t, "org-a", job.Key)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, int64(1000), job.BackoffMs)
	assert.Equal(t, domain.JobStateWaiting, job.State)
	assert.JSONEq(t, `{"organizationId":"org-a","slug":"acme"}`, string(job.Payload))

	require.Len(t, notifier.published, 1)
	assert.Equal(t, job.ID, notifier.published[0].ID)
}

func TestQueue_Enqueue_CoalescesSameKey(t *testing.T) {
	q, store, notifier := newTestQueue()
	ctx := context.Background()

	first, err := q.EnqueueCleanup(ctx, domain.SystemOrganization)
	require.NoError(t, err)
	second, err := q.EnqueueCleanup(ctx, domain.SystemOrganization)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	assert.Len(t, store.jobs, 1)
	assert.Len(t, notifier.published, 1, "coalesced job must not be republished")

	// После завершения первого job'а ключ снова свободен
	first.Job.State = domain.JobStateCompleted
	third, err := q.EnqueueCleanup(ctx, domain.SystemOrganization)
	require.NoError(t, err)
	assert.True(t, third.Created)
}

func TestQueue_Enqueue_Options(t *testing.T) {
	q, _, _ := newTestQueue()

	res, err := q.Enqueue(context.Background(), domain.JobKindChannelSync,
		domain.ChannelSyncPayload{ChannelID: "ch-1", OrganizationID: "org-a"},
		Options{Queue: domain.QueueHighPriority, Attempts: 7, Backoff: 3 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, domain.QueueHighPriority, res.Job.Queue)
	assert.Equal(t, 7, res.Job.MaxAttempts)
	assert.Equal(t, int64(3000), res.Job.BackoffMs)

	_, err = q.Enqueue(context.Background(), domain.JobKindChannelSync,
		domain.ChannelSyncPayload{ChannelID: "ch-2", OrganizationID: "org-a"},
		Options{Queue: "nope"})
	assert.ErrorIs(t, err, ErrUnknownQueue)
}

func TestQueue_Enqueue_PublishFailureIsNotFatal(t *testing.T) {
	q, store, notifier := newTestQueue()
	notifier.err = errors.New("broker down")

	res, err := q.EnqueueChannelSync(context.Background(), domain.ChannelSyncPayload{
		ChannelID: "ch-1", OrganizationID: "org-a",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, store.jobs, 1)
}
