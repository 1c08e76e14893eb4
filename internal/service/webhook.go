package service

import (
	"context"
	"errors"
	"time"

	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/observability"
	"go.uber.org/zap"
)

// ErrInvalidSignature is returned for webhook deliveries that fail verification.
var ErrInvalidSignature = errors.New("invalid signature")

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
)

// WebhookService verifies and dispatches payment gateway events.
type WebhookService struct {
	store    WebhookEventStore
	gateway  gateway.Gateway
	escrow   *EscrowService
	checkout *CheckoutService
	now      func() time.Time
}

func NewWebhookService(store WebhookEventStore, gw gateway.Gateway, escrow *EscrowService, checkout *CheckoutService) *WebhookService {
	return &WebhookService{store: store, gateway: gw, escrow: escrow, checkout: checkout, now: time.Now}
}

// WebhookResult is acknowledged back to the gateway.
type WebhookResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// Handle processes one delivery. Events already processed are acknowledged
// without side effects. Events that can never succeed are recorded as
// rejected so the gateway stops retrying; transient failures return an
// error and are not recorded.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	evt, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			observability.IncrementWebhookEvent("unknown", "invalid_signature")
			return nil, ErrInvalidSignature
		}
		observability.IncrementWebhookEvent("unknown", "invalid_payload")
		return nil, domain.Validationf("invalid webhook payload")
	}
	result := &WebhookResult{EventID: evt.ID, Type: string(evt.Type)}

	seen, err := s.store.WebhookEventProcessed(ctx, evt.ID)
	if err != nil {
		return nil, storeError(err, "webhook event")
	}
	if seen {
		result.Status = WebhookDuplicate
		observability.IncrementWebhookEvent(result.Type, result.Status)
		return result, nil
	}

	switch evt.Type {
	case gateway.EventCheckoutCompleted:
		_, err = s.checkout.CompleteCheckout(ctx, evt)
		result.Status = WebhookProcessed
	case gateway.EventHoldAuthorized:
		_, err = s.escrow.ConfirmHeldByReference(ctx, evt.Reference)
		result.Status = WebhookProcessed
	default:
		result.Status = WebhookIgnored
	}
	if err != nil {
		if !isClientError(err) {
			observability.IncrementWebhookEvent(result.Type, "error")
			return nil, err
		}
		zap.L().Warn("webhook event rejected",
			zap.String("event_id", evt.ID),
			zap.String("type", result.Type),
			zap.Error(err),
		)
		result.Status = WebhookRejected
	}

	if err := s.store.RecordWebhookEvent(ctx, evt.ID, result.Type, s.now().UTC()); err != nil {
		return nil, storeError(err, "webhook event")
	}
	observability.IncrementWebhookEvent(result.Type, result.Status)
	return result, nil
}
