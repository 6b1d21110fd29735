package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Chatplane/internal/telemetry"
)

// State — состояние breaker'а.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText отдаёт состояние строкой в JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Default configuration values.
const (
	defaultThreshold    = 5
	defaultOpenTimeout  = 30 * time.Second
	defaultResetTimeout = 60 * time.Second
)

// Config — параметры breaker'а.
type Config struct {
	// Threshold — сколько ошибок подряд открывают breaker (default: 5).
	Threshold int

	// OpenTimeout — сколько breaker остаётся OPEN после последней ошибки (default: 30s).
	OpenTimeout time.Duration

	// ResetTimeout — сколько должно пройти с последней ошибки, чтобы успех
	// в HALF_OPEN закрыл breaker (default: 60s).
	ResetTimeout time.Duration

	// IsFailure решает, считать ли ошибку отказом зависимости.
	// nil — любая ошибка считается отказом.
	IsFailure func(err error) bool

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Stats — снимок состояния breaker'а.
type Stats struct {
	Name                 string     `json:"name"`
	State                State      `json:"state"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	TotalCalls           int64      `json:"total_calls"`
	TotalFailures        int64      `json:"total_failures"`
	TotalSuccesses       int64      `json:"total_successes"`
	TotalRejected        int64      `json:"total_rejected"`
	LastFailureTime      *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime      *time.Time `json:"last_success_time,omitempty"`
}

// Breaker — circuit breaker одной зависимости. Безопасен для конкурентного использования.
type Breaker struct {
	name         string
	threshold    int
	openTimeout  time.Duration
	resetTimeout time.Duration
	isFailure    func(error) bool
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// New создаёт breaker в состоянии CLOSED.
func New(name string, cfg Config) *Breaker {
	b := &Breaker{
		name:         name,
		threshold:    cfg.Threshold,
		openTimeout:  cfg.OpenTimeout,
		resetTimeout: cfg.ResetTimeout,
		isFailure:    cfg.IsFailure,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if b.threshold <= 0 {
		b.threshold = defaultThreshold
	}
	if b.openTimeout <= 0 {
		b.openTimeout = defaultOpenTimeout
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = defaultResetTimeout
	}
	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return err != nil }
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("breaker", name)
	b.stats.Name = name

	telemetry.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name возвращает имя зависимости.
func (b *Breaker) Name() string {
	return b.name
}

// State возвращает текущее состояние.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats возвращает снимок статистики.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Execute вызывает fn, если breaker пропускает вызов.
//
// В OPEN возвращает *CircuitBreakerError, не вызывая fn. Ошибка fn
// возвращается как есть.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// Do — типизированный вариант Execute.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// admit решает, пропускать ли вызов.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.stats.LastFailureTime != nil && b.now().Sub(*b.stats.LastFailureTime) > b.openTimeout {
			b.transition(StateHalfOpen)
		} else {
			b.stats.TotalRejected++
			telemetry.BreakerRejected.WithLabelValues(b.name).Inc()
			return &CircuitBreakerError{Name: b.name, State: b.state, Stats: b.snapshot()}
		}
	}

	b.stats.TotalCalls++
	return nil
}

// record учитывает результат вызова.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.isFailure(err) {
		b.stats.TotalFailures++
		b.stats.ConsecutiveFailures++
		b.stats.ConsecutiveSuccesses = 0
		b.stats.LastFailureTime = &now

		switch b.state {
		case StateHalfOpen:
			b.transition(StateOpen)
		case StateClosed:
			if b.stats.ConsecutiveFailures >= b.threshold {
				b.transition(StateOpen)
			}
		}
		return
	}

	b.stats.TotalSuccesses++
	b.stats.ConsecutiveSuccesses++
	b.stats.ConsecutiveFailures = 0
	b.stats.LastSuccessTime = &now

	if b.state == StateHalfOpen {
		if b.stats.LastFailureTime == nil || now.Sub(*b.stats.LastFailureTime) > b.resetTimeout {
			b.transition(StateClosed)
		}
	}
}

// transition вызывается под b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	telemetry.BreakerState.WithLabelValues(b.name).Set(float64(to))

	if to == StateOpen {
		b.logger.Warn("circuit breaker opened",
			"from", from.String(),
			"consecutive_failures", b.stats.ConsecutiveFailures,
		)
		return
	}
	b.logger.Info("circuit breaker state changed", "from", from.String(), "to", to.String())
}

func (b *Breaker) snapshot() Stats {
	s := b.stats
	s.State = b.state
	if s.LastFailureTime != nil {
		t := *s.LastFailureTime
		s.LastFailureTime = &t
	}
	if s.LastSuccessTime != nil {
		t := *s.LastSuccessTime
		s.LastSuccessTime = &t
	}
	return s
}
