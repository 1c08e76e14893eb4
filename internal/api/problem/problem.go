package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"go.uber.org/zap"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.mycarconcierge.com/"

// Details represents RFC 7807 Problem Details. Error repeats the detail for
// clients that only read {error}.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Error     string `json:"error"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	instance := ""
	requestID := ""
	if r != nil {
		instance = r.URL.Path
		requestID = r.Header.Get("X-Trace-ID")
	}
	if requestID == "" {
		requestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Error:     detail,
		Instance:  instance,
		RequestID: requestID,
	})
}

// WriteError classifies err and writes the matching problem. Unclassified
// errors are logged and answered with a generic message; the request id in
// the body correlates the two.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, slug := classify(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("unexpected error",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get("X-Trace-ID")),
		)
		Write(w, r, status, Type(slug), "", "unexpected server error, retry later and quote the request id")
		return
	}

	detail, ok := domain.PublicMessage(err)
	if !ok {
		detail = http.StatusText(status)
	}
	if status == http.StatusBadGateway {
		zap.L().Warn("payment gateway failure", zap.Error(err), zap.String("path", r.URL.Path))
	}
	Write(w, r, status, Type(slug), "", detail)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid-state"
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway, "gateway"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return http.StatusConflict, "db/unique-violation"
		case "23503", "23514", "23502":
			return http.StatusBadRequest, "db/constraint-violation"
		}
	}
	return http.StatusInternalServerError, "internal-server-error"
}
