package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/domain"
)

// CleanupAttachments ставит attachment-cleanup.
// POST /api/v1/attachments/cleanup
func (h *Handler) CleanupAttachments(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	res, err := h.queue.EnqueueCleanup(r.Context(), req.OrganizationID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	Accepted(w, EnqueueFromResult(res))
}

// SyncChannel ставит channel-sync.
// POST /api/v1/channels/{id}/sync
func (h *Handler) SyncChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	res, err := h.queue.EnqueueChannelSync(r.Context(), domain.ChannelSyncPayload{
		ChannelID:      r.PathValue("id"),
		OrganizationID: req.OrganizationID,
	})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	Accepted(w, EnqueueFromResult(res))
}

// SyncLogo ставит cross-org-logo-sync.
// POST /api/v1/organizations/{id}/logo
func (h *Handler) SyncLogo(w http.ResponseWriter, r *http.Request) {
	var req LogoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationError(w, err)
		return
	}

	res, err := h.queue.EnqueueLogoSync(r.Context(), domain.LogoSyncPayload{
		OrganizationID: r.PathValue("id"),
		LogoURL:        req.LogoURL,
	})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	Accepted(w, EnqueueFromResult(res))
}

// GetJob возвращает job по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job))
}
