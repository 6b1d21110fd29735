package events

import (
	"context"

	"github.com/shaiso/Chatplane/internal/provision"
)

// ProvisioningChannel — канал progress-событий организации.
func ProvisioningChannel(orgID string) string {
	return "provisioning:" + orgID
}

// ProgressReporter публикует ход provisioning'а в provisioning:{organizationId}.
type ProgressReporter struct {
	pub *Publisher
}

// NewProgressReporter создаёт reporter поверх Publisher.
func NewProgressReporter(pub *Publisher) *ProgressReporter {
	return &ProgressReporter{pub: pub}
}

// Report публикует событие; ошибка доставки только логируется.
func (r *ProgressReporter) Report(ctx context.Context, p provision.Progress) {
	if err := r.pub.publishJSON(ctx, ProvisioningChannel(p.OrganizationID), p); err != nil {
		r.pub.logger.Warn("failed to publish provisioning progress",
			"organization_id", p.OrganizationID,
			"step", p.Step,
			"error", err,
		)
	}
}

var _ provision.ProgressReporter = (*ProgressReporter)(nil)
