package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Chatplane/internal/domain"
)

var validate = validator.New()

// kindSpec описывает kind: очередь по умолчанию и разбор payload'а в ключ.
type kindSpec struct {
	queue domain.QueueName
	key   func(raw []byte) (string, error)
}

var kinds = map[domain.JobKind]kindSpec{
	domain.JobKindTenantProvisioning: {
		queue: domain.QueueHighPriority,
		key: keyOf(func(p domain.ProvisionPayload) string {
			return p.OrganizationID
		}),
	},
	domain.JobKindAttachmentCleanup: {
		queue: domain.QueueCleanup,
		key: keyOf(func(p domain.CleanupPayload) string {
			return p.OrganizationID
		}),
	},
	domain.JobKindChannelSync: {
		queue: domain.QueueDefault,
		key: keyOf(func(p domain.ChannelSyncPayload) string {
			return p.ChannelID
		}),
	},
	domain.JobKindCrossOrgLogoSync: {
		queue: domain.QueueLowPriority,
		key: keyOf(func(p domain.LogoSyncPayload) string {
			return p.OrganizationID
		}),
	},
}

// keyOf разбирает и валидирует payload типа T, затем берёт из него ключ.
func keyOf[T any](key func(T) string) func([]byte) (string, error) {
	return func(raw []byte) (string, error) {
		p, err := DecodePayload[T](raw)
		if err != nil {
			return "", err
		}
		return key(p), nil
	}
}

// DecodePayload разбирает payload job'а и проверяет validate-теги.
func DecodePayload[T any](raw []byte) (T, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// DefaultQueue возвращает очередь kind'а по умолчанию.
func DefaultQueue(kind domain.JobKind) (domain.QueueName, error) {
	spec, ok := kinds[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return spec.queue, nil
}

// KeyFor вычисляет ключ идемпотентности job'а из payload.
func KeyFor(kind domain.JobKind, raw []byte) (string, error) {
	spec, ok := kinds[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return spec.key(raw)
}
