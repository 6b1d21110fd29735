package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := h.middleware()

	// Tenants
	mux.Handle("POST /api/v1/tenants", chain(http.HandlerFunc(h.CreateTenant)))
	mux.Handle("GET /api/v1/tenants/{orgId}/health", chain(http.HandlerFunc(h.TenantHealth)))

	// Hosts
	mux.Handle("POST /api/v1/hosts", chain(http.HandlerFunc(h.CreateHost)))
	mux.Handle("GET /api/v1/hosts", chain(http.HandlerFunc(h.ListHosts)))
	mux.Handle("PUT /api/v1/hosts/{id}/status", chain(http.HandlerFunc(h.UpdateHostStatus)))

	// Jobs
	mux.Handle("POST /api/v1/attachments/cleanup", chain(http.HandlerFunc(h.CleanupAttachments)))
	mux.Handle("POST /api/v1/channels/{id}/sync", chain(http.HandlerFunc(h.SyncChannel)))
	mux.Handle("POST /api/v1/organizations/{id}/logo", chain(http.HandlerFunc(h.SyncLogo)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))

	h.RegisterBreakerRoutes(mux)
}

// RegisterBreakerRoutes регистрирует только /api/v1/breakers. Нужен
// процессам, которые сами ходят во внешние зависимости (worker).
func (h *Handler) RegisterBreakerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/breakers", h.middleware()(http.HandlerFunc(h.ListBreakers)))
}

func (h *Handler) middleware() Middleware {
	return Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)
}
