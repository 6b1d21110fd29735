package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID          string `json:"id"`
	Queue       string `json:"queue"`
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

// Finished проверяет, что job больше не изменится.
func (j *JobResponse) Finished() bool {
	return j.State == "completed" || j.State == "failed"
}

// EnqueueResponse — результат постановки job'а.
type EnqueueResponse struct {
	Job     JobResponse `json:"job"`
	Created bool        `json:"created"`
}

// HealthReport — состояние базы tenant'а.
type HealthReport struct {
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
	DatabaseExists bool   `json:"database_exists"`
	CanConnect     bool   `json:"can_connect"`
	SchemaVersion  string `json:"schema_version,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HostResponse — Postgres-хост каталога.
type HostResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Region         string `json:"region"`
	Tier           string `json:"tier"`
	MaxTenants     int    `json:"max_tenants"`
	CurrentTenants int    `json:"current_tenants"`
	Status         string `json:"status"`
	IsDefault      bool   `json:"is_default"`
}

// CreateHostRequest — регистрация хоста.
type CreateHostRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Region     string `json:"region,omitempty"`
	Tier       string `json:"tier,omitempty"`
	MaxTenants int    `json:"max_tenants"`
	IsDefault  bool   `json:"is_default"`
}

// BreakerStats — состояние circuit breaker'а.
type BreakerStats struct {
	Name                 string `json:"name"`
	State                string `json:"state"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	ConsecutiveSuccesses int    `json:"consecutive_successes"`
	TotalCalls           int64  `json:"total_calls"`
	TotalFailures        int64  `json:"total_failures"`
	TotalRejected        int64  `json:"total_rejected"`
	LastFailureTime      string `json:"last_failure_time,omitempty"`
}

// --- Request types ---

// CreateTenantRequest — provisioning организации.
type CreateTenantRequest struct {
	OrganizationID string `json:"organization_id"`
	Slug           string `json:"slug"`
	Tier           string `json:"tier,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// ErrUnavailable — сервер ответил 503 с данными (например, нездоровый tenant).
var ErrUnavailable = errors.New("service unavailable")

// Client — HTTP-клиент для Chatplane API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tenants ---

// CreateTenant ставит provisioning организации.
func (c *Client) CreateTenant(req CreateTenantRequest) (*EnqueueResponse, error) {
	var res EnqueueResponse
	err := c.post("/api/v1/tenants", req, &res)
	return &res, err
}

// TenantHealth возвращает отчёт о базе tenant'а.
//
// Нездоровый tenant приходит с 503, но с отчётом в data: отчёт
// возвращается вместе с ошибкой.
func (c *Client) TenantHealth(orgID string) (*HealthReport, error) {
	var report HealthReport
	err := c.get("/api/v1/tenants/"+url.PathEscape(orgID)+"/health", &report)
	return &report, err
}

// --- Hosts ---

// CreateHost регистрирует хост.
func (c *Client) CreateHost(req CreateHostRequest) (*HostResponse, error) {
	var host HostResponse
	err := c.post("/api/v1/hosts", req, &host)
	return &host, err
}

// ListHosts возвращает хосты.
func (c *Client) ListHosts() ([]HostResponse, error) {
	var hosts []HostResponse
	err := c.list("/api/v1/hosts", nil, &hosts)
	return hosts, err
}

// SetHostStatus меняет статус хоста.
func (c *Client) SetHostStatus(id, status string) error {
	return c.doData(http.MethodPut, "/api/v1/hosts/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, nil)
}

// --- Jobs ---

// CleanupAttachments ставит attachment-cleanup. orgID = "system" — все tenant'ы.
func (c *Client) CleanupAttachments(orgID string) (*EnqueueResponse, error) {
	var res EnqueueResponse
	err := c.post("/api/v1/attachments/cleanup", map[string]string{"organization_id": orgID}, &res)
	return &res, err
}

// SyncChannel ставит channel-sync.
func (c *Client) SyncChannel(orgID, channelID string) (*EnqueueResponse, error) {
	var res EnqueueResponse
	err := c.post("/api/v1/channels/"+url.PathEscape(channelID)+"/sync",
		map[string]string{"organization_id": orgID}, &res)
	return &res, err
}

// SyncLogo ставит cross-org-logo-sync.
func (c *Client) SyncLogo(orgID, logoURL string) (*EnqueueResponse, error) {
	var res EnqueueResponse
	err := c.post("/api/v1/organizations/"+url.PathEscape(orgID)+"/logo",
		map[string]string{"logo_url": logoURL}, &res)
	return &res, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// --- Breakers ---

// ListBreakers возвращает состояние breaker'ов.
func (c *Client) ListBreakers() ([]BreakerStats, error) {
	var stats []BreakerStats
	err := c.list("/api/v1/breakers", nil, &stats)
	return stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return c.decodeUnavailable(resp, result)
	}

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeUnavailable разбирает 503: либо data с отчётом, либо обычную ошибку.
func (c *Client) decodeUnavailable(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var dr dataResponse
	if err := json.Unmarshal(body, &dr); err == nil && len(dr.Data) > 0 && result != nil {
		if err := json.Unmarshal(dr.Data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return ErrUnavailable
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
