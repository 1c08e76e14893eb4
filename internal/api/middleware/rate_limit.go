package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/mycarconcierge/marketplace/internal/api/problem"
)

// PublicRateLimiter limits unauthenticated routes (webhooks, fee preview,
// health) per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded(fmt.Sprintf("Rate limit of %d req/s exceeded for this IP", rps))),
	)
}

// AuthRateLimiter limits authenticated routes per user id, falling back to
// the client IP for service tokens without a subject.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return "user:" + userID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded(fmt.Sprintf("Rate limit of %d req/s exceeded for this user", rps))),
	)
}

func limitExceeded(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			detail,
		)
	}
}
