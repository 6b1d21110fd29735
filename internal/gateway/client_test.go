package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Chatplane/internal/breaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, threshold int) (*Client, *breaker.Breaker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	br := breaker.New(BreakerName, breaker.Config{Threshold: threshold})
	return NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Breaker: br}), br
}

func TestClient_ConnectionState(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/connectionState/acme-main", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"instance":{"instanceName":"acme-main","state":"open"}}`))
	}, 3)

	state, err := client.ConnectionState(context.Background(), "acme-main")
	require.NoError(t, err)
	assert.Equal(t, "acme-main", state.InstanceName)
	assert.Equal(t, StateOpen, state.State)
}

func TestClient_FetchInstance(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/fetchInstances", r.URL.Path)
		assert.Equal(t, "acme-main", r.URL.Query().Get("instanceName"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"acme-main","connectionStatus":"open","profileName":"Acme"}]`))
	}, 3)

	inst, err := client.FetchInstance(context.Background(), "acme-main")
	require.NoError(t, err)
	assert.Equal(t, "Acme", inst.ProfileName)
	assert.Equal(t, "open", inst.ConnectionStatus)
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	client, br := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"instance does not exist"}`))
	}, 1)

	for range 3 {
		_, err := client.ConnectionState(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrInstanceNotFound)
	}
	assert.Equal(t, breaker.StateClosed, br.State())
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	client, br := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 2)
	ctx := context.Background()

	_, err := client.ConnectionState(ctx, "acme-main")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = client.ConnectionState(ctx, "acme-main")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, breaker.StateOpen, br.State())

	// Открытый breaker не доходит до сервера
	_, err = client.ConnectionState(ctx, "acme-main")
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}
