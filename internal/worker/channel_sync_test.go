package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/breaker"
	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/gateway"
)

func channelStore() *memTenantStore {
	s := newMemTenantStore()
	s.channels["ch-1"] = &domain.Channel{
		ID:                    "ch-1",
		EvolutionInstanceName: "acme-main",
		Status:                domain.ChannelStatusConnecting,
		SyncStatus:            domain.ChannelSyncSynced,
	}
	return s
}

func TestChannelSync_MapsGatewayState(t *testing.T) {
	tests := map[string]string{
		gateway.StateOpen:       domain.ChannelStatusConnected,
		gateway.StateConnecting: domain.ChannelStatusConnecting,
		gateway.StateClose:      domain.ChannelStatusDisconnected,
	}

	for state, want := range tests {
		t.Run(state, func(t *testing.T) {
			store := channelStore()
			events := &recordedEvents{}
			h := NewChannelSyncHandler(storeSet{"org-a": store}.source(), stubGateway{state: state}, events, nil)

			ev, err := h.Sync(context.Background(), domain.ChannelSyncPayload{ChannelID: "ch-1", OrganizationID: "org-a"})
			require.NoError(t, err)

			assert.Equal(t, want, ev.Status)
			assert.Equal(t, want, store.channels["ch-1"].Status)
			assert.Equal(t, domain.ChannelSyncSynced, store.channels["ch-1"].SyncStatus)
			require.Len(t, events.channels, 1)
			assert.Equal(t, "org-a", events.channels[0].OrganizationID)
		})
	}
}

func TestChannelSync_BreakerOpenIsRetried(t *testing.T) {
	store := channelStore()
	events := &recordedEvents{}
	openErr := &breaker.CircuitBreakerError{Name: gateway.BreakerName, State: breaker.StateOpen}
	h := NewChannelSyncHandler(storeSet{"org-a": store}.source(), stubGateway{err: openErr}, events, nil)

	_, err := h.Sync(context.Background(), domain.ChannelSyncPayload{ChannelID: "ch-1", OrganizationID: "org-a"})

	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.True(t, shouldRetry(err))
	assert.Equal(t, domain.ChannelSyncFailed, store.channels["ch-1"].SyncStatus)
	assert.Equal(t, domain.ChannelStatusConnecting, store.channels["ch-1"].Status)
	assert.Empty(t, events.channels)
}

func TestChannelSync_InstanceGone(t *testing.T) {
	store := channelStore()
	events := &recordedEvents{}
	notFound := &gateway.APIError{Method: "GET", Path: "/instance/connectionState/acme-main", StatusCode: 404}
	h := NewChannelSyncHandler(storeSet{"org-a": store}.source(), stubGateway{err: notFound}, events, nil)

	ev, err := h.Sync(context.Background(), domain.ChannelSyncPayload{ChannelID: "ch-1", OrganizationID: "org-a"})
	require.NoError(t, err)

	assert.Equal(t, domain.ChannelStatusDisconnected, ev.Status)
	assert.Equal(t, domain.ChannelSyncFailed, store.channels["ch-1"].SyncStatus)
	require.Len(t, events.channels, 1)
}

func TestChannelSync_UnknownChannelIsPermanent(t *testing.T) {
	h := NewChannelSyncHandler(storeSet{"org-a": newMemTenantStore()}.source(), stubGateway{state: gateway.StateOpen}, &recordedEvents{}, nil)

	_, err := h.Sync(context.Background(), domain.ChannelSyncPayload{ChannelID: "nope", OrganizationID: "org-a"})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.False(t, shouldRetry(err))
}

func TestChannelSync_StoreErrorIsRetried(t *testing.T) {
	store := channelStore()
	store.channelErr = errors.New("conn reset by peer")
	h := NewChannelSyncHandler(storeSet{"org-a": store}.source(), stubGateway{state: gateway.StateOpen}, &recordedEvents{}, nil)

	job := newJob(domain.JobKindChannelSync, domain.ChannelSyncPayload{ChannelID: "ch-1", OrganizationID: "org-a"}, 3)
	jobsStore := newMemJobs(job)
	reg := NewRegistry()
	reg.Register(domain.JobKindChannelSync, h)

	var delays []time.Duration
	w := newTestWorker(jobsStore, reg, &delays)
	require.NoError(t, w.Process(context.Background(), job.ID))

	got := jobsStore.get(job.ID)
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.Equal(t, 3, got.Attempts)
	assert.Len(t, delays, 2)
	assert.Contains(t, got.LastError, "conn reset by peer")
}
