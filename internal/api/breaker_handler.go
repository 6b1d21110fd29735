package api

import (
	"net/http"

	"github.com/shaiso/Chatplane/internal/breaker"
)

// ListBreakers возвращает состояние всех circuit breaker'ов процесса.
// GET /api/v1/breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	stats := []breaker.Stats{}
	if h.breakers != nil {
		stats = h.breakers.Stats()
	}
	List(w, stats, len(stats))
}
