package middleware

import (
	"net/http"

	"github.com/mycarconcierge/marketplace/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a handler panic into a 500 problem response. The
// stack goes to the log only.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("user_id", UserIDFromContext(r.Context())),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				problem.Write(w, r,
					http.StatusInternalServerError,
					problem.Type("internal-server-error"),
					http.StatusText(http.StatusInternalServerError),
					"unexpected server error, retry later and quote the request id",
				)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
