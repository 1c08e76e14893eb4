package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/mycarconcierge/marketplace/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

// WebhookHandler receives payment gateway events.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
	}
}

// HandleGatewayEvent handles POST /api/webhooks/gateway.
// The raw body is verified against the Stripe-Signature header, or
// X-Signature for the mock gateway, before anything is trusted.
func (h *WebhookHandler) HandleGatewayEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		zap.L().Warn("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Signature")
	}

	resp, err := h.webhookSvc.Handle(r.Context(), body, signature)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
