package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/api/middleware"
	"github.com/mycarconcierge/marketplace/internal/api/problem"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/service"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// respondServiceError maps a classified service error onto its HTTP status.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	problem.WriteError(w, r, err)
}

func requestActor(r *http.Request) (service.Actor, error) {
	role := middleware.UserRoleFromContext(r.Context())
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		if role == domain.RoleService {
			return service.SystemActor(), nil
		}
		return service.Actor{}, errors.New("missing user in auth context")
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return service.Actor{}, errors.New("invalid user id in auth context")
	}
	return service.Actor{UserID: id, Role: role}, nil
}

// withActor resolves the caller or answers 401.
func withActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", "Invalid token claims")
		return service.Actor{}, false
	}
	return actor, true
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseUUID(w http.ResponseWriter, r *http.Request, field, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", field+" must be a valid identifier")
		return uuid.Nil, false
	}
	return id, true
}
