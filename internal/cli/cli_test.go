package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiStub — минимальный сервер с форматом ответов API.
func apiStub(t *testing.T, requests *[]string) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	job := map[string]any{"id": "job-1", "kind": "tenant-provisioning", "queue": "high-priority", "state": "waiting", "attempts": 0, "max_attempts": 5}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tenants", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*requests = append(*requests, string(body))
		writeJSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{"job": job, "created": true}})
	})
	mux.HandleFunc("GET /api/v1/tenants/{org}/health", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("org") == "sick" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"data": map[string]any{"organization_id": "sick", "status": "unhealthy", "error": "connection refused"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"organization_id": "ok", "status": "healthy", "schema_version": "004_attachments"}})
	})
	mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "job not found"}})
	})
	mux.HandleFunc("POST /api/v1/hosts", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*requests = append(*requests, string(body))
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": "h-1", "name": "pg-eu-1", "host": "pgbouncer", "port": 6432, "max_tenants": 100, "status": "active"}})
	})
	mux.HandleFunc("PUT /api/v1/hosts/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*requests = append(*requests, r.PathValue("id")+" "+string(body))
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"status": "draining"}})
	})
	mux.HandleFunc("GET /api/v1/breakers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"name": "whatsapp-gateway", "state": "OPEN", "consecutive_failures": 5}}, "total": 1})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, baseURL string, jsonMode bool, cmd func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := cmd(
		func() *Client { return NewClient(baseURL) },
		func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) },
	)
	c.SetArgs(args)
	c.SetOut(io.Discard)
	c.SetErr(io.Discard)
	err := c.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTenantCreate(t *testing.T) {
	var requests []string
	srv := apiStub(t, &requests)

	stdout, stderr, err := run(t, srv.URL, false, NewTenantCmd, "create", "org-1", "--slug", "acme")
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.JSONEq(t, `{"organization_id":"org-1","slug":"acme"}`, requests[0])
	assert.Contains(t, stdout, "job-1")
	assert.Contains(t, stdout, "high-priority")
	assert.Contains(t, stderr, "Job enqueued")
}

func TestTenantHealth(t *testing.T) {
	srv := apiStub(t, new([]string))

	stdout, _, err := run(t, srv.URL, false, NewTenantCmd, "health", "ok")
	require.NoError(t, err)
	assert.Contains(t, stdout, "004_attachments")

	stdout, _, err = run(t, srv.URL, true, NewTenantCmd, "health", "sick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")

	var report HealthReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "connection refused", report.Error)
}

func TestJobShow_NotFound(t *testing.T) {
	srv := apiStub(t, new([]string))

	_, _, err := run(t, srv.URL, false, NewJobCmd, "show", "missing")
	assert.EqualError(t, err, "NOT_FOUND: job not found")
}

func TestHostAdd(t *testing.T) {
	var requests []string
	srv := apiStub(t, &requests)

	stdout, stderr, err := run(t, srv.URL, false, NewHostCmd, "add", "pg-eu-1", "--host", "pgbouncer", "--default")
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.JSONEq(t, `{"name":"pg-eu-1","host":"pgbouncer","port":6432,"max_tenants":100,"is_default":true}`, requests[0])
	assert.Contains(t, stdout, "pgbouncer:6432")
	assert.Contains(t, stdout, "0/100")
	assert.Contains(t, stderr, "Host registered")
}

func TestHostStatus(t *testing.T) {
	var requests []string
	srv := apiStub(t, &requests)

	_, stderr, err := run(t, srv.URL, false, NewHostCmd, "status", "h-1", "draining")
	require.NoError(t, err)
	assert.Equal(t, []string{`h-1 {"status":"draining"}`}, requests)
	assert.Contains(t, stderr, "now draining")
}

func TestBreakerList(t *testing.T) {
	srv := apiStub(t, new([]string))

	stdout, _, err := run(t, srv.URL, false, NewBreakerCmd, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "whatsapp-gateway")
	assert.Contains(t, stdout, "OPEN")
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	NewOutputTo(false, &buf, io.Discard).Table([]string{"A", "BB"}, [][]string{{"1", "2"}})
	assert.Equal(t, "A  BB\n-  --\n1  2\n", buf.String())
}

func TestJobShow_WaitReportsProgress(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		state := "active"
		if calls > 1 {
			state = "completed"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"id": "job-1", "kind": "channel-sync", "queue": "default", "state": state, "attempts": 1, "max_attempts": 3,
		}})
	}))
	t.Cleanup(srv.Close)

	stdout, stderr, err := run(t, srv.URL, false, NewJobCmd, "show", "job-1", "--wait", "--interval", "1ms")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, "job job-1: active (attempt 1/3)\n", stderr)
	assert.Contains(t, stdout, "completed")

	_, stderr, err = run(t, srv.URL, true, NewJobCmd, "show", "job-1", "--wait", "--interval", "1ms")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}
