package handler

import (
	"net/http"

	"github.com/mycarconcierge/marketplace/internal/service"
)

// ConnectHandler manages provider payout accounts.
type ConnectHandler struct {
	svc *service.PayoutAccountService
}

func NewConnectHandler(svc *service.PayoutAccountService) *ConnectHandler {
	return &ConnectHandler{svc: svc}
}

// CreateAccount handles POST /api/connect/account.
func (h *ConnectHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	account, err := h.svc.EnsureAccount(r.Context(), actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if account.Created {
		status = http.StatusCreated
	}
	RespondJSON(w, status, account)
}

// OnboardingLink handles POST /api/connect/onboarding-link.
func (h *ConnectHandler) OnboardingLink(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	url, err := h.svc.OnboardingLink(r.Context(), actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}
