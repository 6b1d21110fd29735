package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
)

// CreateHost регистрирует хост для размещения tenant'ов.
// POST /api/v1/hosts
func (h *Handler) CreateHost(w http.ResponseWriter, r *http.Request) {
	var req CreateHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	tier := req.Tier
	if tier == "" {
		tier = domain.DefaultTier
	}

	host := &domain.DatabaseHost{
		ID:             uuid.New(),
		Name:           req.Name,
		Host:           req.Host,
		Port:           req.Port,
		Region:         req.Region,
		Tier:           tier,
		MaxTenants:     req.MaxTenants,
		DiskCapacityGB: req.DiskCapacityGB,
		Status:         domain.HostStatusActive,
		IsDefault:      req.IsDefault,
	}
	if HandleRepoError(w, h.logger, h.hosts.Create(r.Context(), host), "") {
		return
	}

	h.logger.Info("host registered", "host_id", host.ID, "name", host.Name)
	JSON(w, http.StatusCreated, DataResponse{Data: host})
}

// ListHosts возвращает все хосты.
// GET /api/v1/hosts
func (h *Handler) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.hosts.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if hosts == nil {
		hosts = []domain.DatabaseHost{}
	}
	List(w, hosts, len(hosts))
}

// UpdateHostStatus выводит хост из ротации или возвращает в неё.
// PUT /api/v1/hosts/{id}/status
func (h *Handler) UpdateHostStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid host id")
		return
	}

	var req UpdateHostStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	if HandleRepoError(w, h.logger, h.hosts.UpdateStatus(r.Context(), id, req.Status), "host not found") {
		return
	}

	h.logger.Info("host status changed", "host_id", id, "status", req.Status)
	Success(w, map[string]string{"id": id.String(), "status": req.Status})
}
