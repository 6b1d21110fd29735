package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Handler выполняет job одного kind'а.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

// HandlerFunc — Handler из функции.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// Registry — handler'ы по kind.
type Registry struct {
	handlers map[domain.JobKind]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobKind]Handler)}
}

// Register добавляет handler для kind.
func (r *Registry) Register(kind domain.JobKind, h Handler) {
	r.handlers[kind] = h
}

// Get возвращает handler для kind.
func (r *Registry) Get(kind domain.JobKind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return h, nil
}

// Kinds возвращает зарегистрированные kind'ы.
func (r *Registry) Kinds() []domain.JobKind {
	kinds := make([]domain.JobKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
