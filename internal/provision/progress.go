package provision

import "context"

// Step — именованный шаг provisioning'а.
type Step string

const (
	StepRegister       Step = "register"
	StepAllocateHost   Step = "allocate_host"
	StepCreateDatabase Step = "create_database"
	StepMigrate        Step = "migrate"
	StepPartition      Step = "partition"
	StepFinalize       Step = "finalize"
)

// StepStatus — состояние шага в progress-событии.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Progress — событие о ходе provisioning'а для клиента.
//
// Message никогда не содержит внутренних деталей ошибки:
// они остаются в activity log.
type Progress struct {
	OrganizationID string     `json:"organizationId"`
	Step           Step       `json:"step"`
	Status         StepStatus `json:"status"`
	Message        string     `json:"message,omitempty"`
}

// ProgressReporter доставляет события о ходе provisioning'а.
// Ошибки доставки не влияют на pipeline, поэтому Report ничего не возвращает.
type ProgressReporter interface {
	Report(ctx context.Context, p Progress)
}

// NopReporter — reporter, который ничего не делает.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Progress) {}

// genericFailureMessage — текст для клиента при ошибке шага.
const genericFailureMessage = "Workspace setup failed. Our team has been notified."
