package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/provision"
	"github.com/shaiso/Chatplane/internal/telemetry"
)

// CreateTenant ставит provisioning организации.
// POST /api/v1/tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	res, err := h.queue.EnqueueProvisioning(r.Context(), domain.ProvisionPayload{
		OrganizationID: req.OrganizationID,
		Slug:           req.Slug,
		Tier:           req.Tier,
	})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	telemetry.WithOrgID(telemetry.FromContext(r.Context()), req.OrganizationID).Info("provisioning enqueued",
		"job_id", res.Job.ID,
		"created", res.Created,
	)

	Accepted(w, EnqueueFromResult(res))
}

// TenantHealth проверяет базу tenant'а.
// GET /api/v1/tenants/{orgId}/health
//
// Нездоровый tenant — 503 с тем же отчётом в data.
func (h *Handler) TenantHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.health.HealthCheck(r.Context(), r.PathValue("orgId"))
	if HandleRepoError(w, h.logger, err, "tenant not found") {
		return
	}

	if report.Status != provision.Healthy {
		JSON(w, http.StatusServiceUnavailable, DataResponse{Data: report})
		return
	}
	Success(w, report)
}
