package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Chatplane/internal/telemetry"
)

// HeaderRequestID — заголовок корреляции запроса.
const HeaderRequestID = "X-Request-ID"

// Middleware — функция-обёртка для http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware в порядке слева направо.
// Chain(m1, m2)(handler) = m1(m2(handler))
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RequestID берёт X-Request-ID из запроса или генерирует новый,
// возвращает его в ответе и кладёт в контекст логгер с request_id.
//
// Маршруты с {orgId} дополнительно получают organization_id.
func RequestID(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			reqLogger := logger.With("request_id", id)
			if orgID := r.PathValue("orgId"); orgID != "" {
				reqLogger = telemetry.WithOrgID(reqLogger, orgID)
			}

			next.ServeHTTP(w, r.WithContext(telemetry.WithLogger(r.Context(), reqLogger)))
		})
	}
}

// Logging логирует HTTP запросы: 5xx — error, 4xx — warn.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Обёртка для захвата статуса ответа
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rw.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			telemetry.FromContext(r.Context()).Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recovery восстанавливается после паники.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger := telemetry.FromContext(r.Context())
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					InternalError(w, logger, nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter — обёртка для захвата статуса ответа.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
