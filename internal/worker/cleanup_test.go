package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/domain"
)

func downloaded(id string, mt domain.MediaType, age time.Duration) *domain.Attachment {
	at := testNow.Add(-age)
	url := "s3://media/" + id
	return &domain.Attachment{
		ID:             id,
		MediaType:      mt,
		DownloadStatus: domain.DownloadStatusCompleted,
		DownloadedAt:   &at,
		StorageURL:     &url,
	}
}

func TestCleanup_RetentionWindows(t *testing.T) {
	store := newMemTenantStore()
	store.attachments = []*domain.Attachment{
		downloaded("video-49h", domain.MediaTypeVideo, 49*time.Hour),
		downloaded("video-47h", domain.MediaTypeVideo, 47*time.Hour),
		downloaded("doc-91d", domain.MediaTypeDocument, 91*24*time.Hour),
		downloaded("doc-89d", domain.MediaTypeDocument, 89*24*time.Hour),
		downloaded("image-49h", domain.MediaTypeImage, 49*time.Hour),
	}
	pending := &domain.Attachment{ID: "pending", MediaType: domain.MediaTypeVideo, DownloadStatus: domain.DownloadStatusPending}
	store.attachments = append(store.attachments, pending)

	h := NewCleanupHandler(nil, storeSet{"org-a": store}.source(), func() time.Time { return testNow }, nil)

	res, err := h.Run(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Expired["org-a"])

	byID := make(map[string]*domain.Attachment)
	for _, a := range store.attachments {
		byID[a.ID] = a
	}

	for _, id := range []string{"video-49h", "doc-91d"} {
		assert.Equal(t, domain.DownloadStatusExpired, byID[id].DownloadStatus, id)
		assert.Nil(t, byID[id].StorageURL, id)
	}
	for _, id := range []string{"video-47h", "doc-89d", "image-49h"} {
		assert.Equal(t, domain.DownloadStatusCompleted, byID[id].DownloadStatus, id)
		assert.NotNil(t, byID[id].StorageURL, id)
	}
	assert.Equal(t, domain.DownloadStatusPending, pending.DownloadStatus)
}

func TestCleanup_SystemIsolatesTenantFailures(t *testing.T) {
	healthy := newMemTenantStore()
	healthy.attachments = []*domain.Attachment{downloaded("v", domain.MediaTypeVideo, 72*time.Hour)}

	broken := newMemTenantStore()
	broken.err = errors.New("relation attachment does not exist")

	stores := storeSet{"org-a": healthy, "org-b": broken}
	h := NewCleanupHandler(activeTenants("org-a", "org-b", "org-c"), stores.source(), func() time.Time { return testNow }, nil)

	res, err := h.Run(context.Background(), domain.SystemOrganization)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"org-a": 1}, res.Expired)
	assert.ElementsMatch(t, []string{"org-b", "org-c"}, res.Failed)
	assert.Equal(t, int64(1), res.Total())
}

func TestCleanup_SystemFailsWhenCatalogUnreadable(t *testing.T) {
	h := NewCleanupHandler(staticTenants{err: errors.New("catalog down")}, storeSet{}.source(), nil, nil)

	_, err := h.Run(context.Background(), domain.SystemOrganization)
	assert.ErrorContains(t, err, "catalog down")
}

func TestCleanup_SingleTenantFailureIsReturned(t *testing.T) {
	h := NewCleanupHandler(nil, storeSet{}.source(), nil, nil)

	_, err := h.Run(context.Background(), "org-missing")
	assert.ErrorContains(t, err, "org-missing")
}

func TestCleanup_HandleRejectsBadPayload(t *testing.T) {
	h := NewCleanupHandler(nil, storeSet{}.source(), nil, nil)
	job := newJob(domain.JobKindAttachmentCleanup, map[string]string{}, 2)

	err := h.Handle(context.Background(), job)
	assert.Error(t, err)
	assert.False(t, shouldRetry(err))
}
