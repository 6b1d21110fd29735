package breaker

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen — вызов отклонён, потому что breaker открыт.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerError — вызов отклонён без обращения к зависимости.
type CircuitBreakerError struct {
	Name  string
	State State
	Stats Stats
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s (consecutive failures: %d)",
		e.Name, e.State, e.Stats.ConsecutiveFailures)
}

func (e *CircuitBreakerError) Is(target error) bool {
	return target == ErrCircuitOpen
}
