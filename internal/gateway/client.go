// Package gateway — HTTP-клиент WhatsApp-gateway (Evolution API).
//
// Все вызовы идут через общий breaker зависимости: при недоступном
// gateway клиент сразу возвращает *breaker.CircuitBreakerError, не
// занимая слот worker'а сетевым таймаутом. Ответы 4xx отказом
// зависимости не считаются и breaker не открывают.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shaiso/Chatplane/internal/breaker"
)

// BreakerName — имя зависимости в breaker.Registry.
const BreakerName = "whatsapp-gateway"

var (
	// ErrInstanceNotFound — gateway не знает такой инстанс.
	ErrInstanceNotFound = errors.New("gateway instance not found")

	// ErrUnavailable — gateway ответил 5xx или не ответил.
	ErrUnavailable = errors.New("gateway unavailable")
)

// APIError — неуспешный HTTP-ответ gateway.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInstanceNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnavailable:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// Connection states, которые возвращает gateway.
const (
	StateOpen       = "open"
	StateConnecting = "connecting"
	StateClose      = "close"
)

// InstanceState — состояние подключения инстанса к WhatsApp.
type InstanceState struct {
	InstanceName string `json:"instanceName"`
	State        string `json:"state"`
}

// Instance — описание инстанса из fetchInstances.
type Instance struct {
	Name             string `json:"name"`
	ConnectionStatus string `json:"connectionStatus"`
	OwnerJID         string `json:"ownerJid,omitempty"`
	ProfileName      string `json:"profileName,omitempty"`
	ProfilePicURL    string `json:"profilePicUrl,omitempty"`
}

// Config — параметры клиента.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker — общий breaker зависимости (обычно registry.Get(BreakerName)).
	Breaker *breaker.Breaker

	Logger *slog.Logger
}

// Client — клиент WhatsApp-gateway.
type Client struct {
	http    *resty.Client
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewClient создаёт клиент.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	br := cfg.Breaker
	if br == nil {
		br = breaker.New(BreakerName, breaker.Config{Logger: logger})
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey)

	return &Client{
		http:    httpClient,
		breaker: br,
		logger:  logger.With("component", "gateway"),
	}
}

// ConnectionState возвращает состояние подключения инстанса.
func (c *Client) ConnectionState(ctx context.Context, instance string) (*InstanceState, error) {
	var body struct {
		Instance InstanceState `json:"instance"`
	}
	path := "/instance/connectionState/" + url.PathEscape(instance)
	if err := c.get(ctx, path, nil, &body); err != nil {
		return nil, err
	}
	if body.Instance.InstanceName == "" {
		body.Instance.InstanceName = instance
	}
	return &body.Instance, nil
}

// FetchInstance возвращает описание инстанса.
func (c *Client) FetchInstance(ctx context.Context, instance string) (*Instance, error) {
	var body []Instance
	err := c.get(ctx, "/instance/fetchInstances", map[string]string{"instanceName": instance}, &body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
	}
	return &body[0], nil
}

// get выполняет GET через breaker. 5xx и сетевые ошибки учитываются
// breaker'ом как отказ, 4xx возвращается вызывающему как *APIError.
func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) error {
	resp, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (*resty.Response, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(result).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, c.apiError(resp, path)
		}
		return resp, nil
	})
	if err != nil {
		c.logger.Warn("gateway call failed", "path", path, "error", err)
		return err
	}

	if resp.IsError() {
		return c.apiError(resp, path)
	}
	return nil
}

func (c *Client) apiError(resp *resty.Response, path string) *APIError {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return &APIError{
		Method:     http.MethodGet,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Body:       body,
	}
}
