package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/provision"
)

// Provisioner — пайплайн создания базы tenant'а.
type Provisioner interface {
	Provision(ctx context.Context, params provision.Params) (*domain.Tenant, error)
}

// ProvisionHandler выполняет tenant-provisioning.
type ProvisionHandler struct {
	pipeline Provisioner
}

// NewProvisionHandler создаёт handler.
func NewProvisionHandler(p Provisioner) *ProvisionHandler {
	return &ProvisionHandler{pipeline: p}
}

func (h *ProvisionHandler) Handle(ctx context.Context, job *domain.Job) error {
	p, err := jobs.DecodePayload[domain.ProvisionPayload](job.Payload)
	if err != nil {
		return err
	}

	if _, err := h.pipeline.Provision(ctx, provision.Params{
		OrganizationID: p.OrganizationID,
		Slug:           p.Slug,
		Tier:           p.Tier,
	}); err != nil {
		return fmt.Errorf("provision %s: %w", p.OrganizationID, err)
	}
	return nil
}
