package handler

import (
	"net/http"

	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/service"
)

// CheckoutHandler sells bid-credit packs.
type CheckoutHandler struct {
	svc *service.CheckoutService
}

func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type BidPackResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BidCredits   int64  `json:"bidCredits"`
	BonusCredits int64  `json:"bonusCredits"`
	TotalCredits int64  `json:"totalCredits"`
	Price        string `json:"price"`
	PriceCents   int64  `json:"priceCents"`
}

// ListPacks handles GET /api/bid-packs.
func (h *CheckoutHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs := h.svc.ListPacks()
	out := make([]BidPackResponse, 0, len(packs))
	for _, p := range packs {
		out = append(out, BidPackResponse{
			ID:           p.ID,
			Name:         p.Name,
			BidCredits:   p.BidCredits,
			BonusCredits: p.BonusCredits,
			TotalCredits: p.TotalCredits(),
			Price:        domain.MinorToDecimal(p.PriceMinorUnits).StringFixed(2),
			PriceCents:   p.PriceMinorUnits,
		})
	}
	RespondJSON(w, http.StatusOK, map[string]any{"packs": out})
}

type CreateCheckoutRequest struct {
	PackID     string `json:"packId"`
	ProviderID string `json:"providerId"`
}

type CreateCheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// CreateCheckout handles POST /api/create-bid-checkout.
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	var req CreateCheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.CreateCheckout(r.Context(), actor, req.PackID, req.ProviderID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, CreateCheckoutResponse{URL: res.URL, SessionID: res.SessionID})
}
