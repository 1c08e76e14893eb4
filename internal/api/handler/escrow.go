package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/service"
)

// EscrowHandler exposes the payment lifecycle of a package.
type EscrowHandler struct {
	svc *service.EscrowService
}

func NewEscrowHandler(svc *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{svc: svc}
}

// FeeBreakdownResponse renders amounts in major units with two decimals.
type FeeBreakdownResponse struct {
	TotalAmount        string `json:"totalAmount"`
	PlatformFee        string `json:"platformFee"`
	ProviderAmount     string `json:"providerAmount"`
	ProcessorFee       string `json:"processorFee"`
	NetPlatformRevenue string `json:"netPlatformRevenue"`
	LossMaking         bool   `json:"lossMaking"`
}

func newFeeBreakdownResponse(b domain.FeeBreakdown) FeeBreakdownResponse {
	return FeeBreakdownResponse{
		TotalAmount:        b.TotalAmount.StringFixed(2),
		PlatformFee:        b.PlatformFee.StringFixed(2),
		ProviderAmount:     b.ProviderAmount.StringFixed(2),
		ProcessorFee:       b.ProcessorFee.StringFixed(2),
		NetPlatformRevenue: b.NetPlatformRevenue.StringFixed(2),
		LossMaking:         b.IsLossMaking(),
	}
}

type EscrowPaymentResponse struct {
	ID                 string     `json:"id"`
	PackageID          string     `json:"packageId"`
	BidID              string     `json:"bidId"`
	MemberID           string     `json:"memberId"`
	ProviderID         string     `json:"providerId"`
	State              string     `json:"state"`
	Amount             string     `json:"amount"`
	AmountCents        int64      `json:"amountCents"`
	Currency           string     `json:"currency"`
	GatewayReferenceID string     `json:"gatewayReferenceId"`
	TransferReference  *string    `json:"transferReference,omitempty"`
	RefundReason       *string    `json:"refundReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	HeldAt             *time.Time `json:"heldAt,omitempty"`
	CapturedAt         *time.Time `json:"capturedAt,omitempty"`
	ReleasedAt         *time.Time `json:"releasedAt,omitempty"`
	RefundedAt         *time.Time `json:"refundedAt,omitempty"`
}

func newEscrowPaymentResponse(p *models.EscrowPayment) EscrowPaymentResponse {
	return EscrowPaymentResponse{
		ID:                 p.ID.String(),
		PackageID:          p.PackageID.String(),
		BidID:              p.BidID.String(),
		MemberID:           p.MemberID.String(),
		ProviderID:         p.ProviderID.String(),
		State:              p.State.String(),
		Amount:             domain.MinorToDecimal(p.GrossCents).StringFixed(2),
		AmountCents:        p.GrossCents,
		Currency:           p.Currency,
		GatewayReferenceID: p.GatewayReference,
		TransferReference:  p.TransferReference,
		RefundReason:       p.RefundReason,
		CreatedAt:          p.CreatedAt,
		HeldAt:             p.HeldAt,
		CapturedAt:         p.CapturedAt,
		ReleasedAt:         p.ReleasedAt,
		RefundedAt:         p.RefundedAt,
	}
}

// CreateEscrowRequest identifies the package and bid to pay for. The price
// always comes from the accepted bid; an amount field is refused.
type CreateEscrowRequest struct {
	PackageID string          `json:"packageId"`
	BidID     string          `json:"bidId"`
	Amount    json.RawMessage `json:"amount,omitempty"`
}

type CreateEscrowResponse struct {
	Payment      EscrowPaymentResponse `json:"payment"`
	ClientSecret string                `json:"clientSecret"`
	Fees         FeeBreakdownResponse  `json:"fees"`
}

// Create handles POST /api/escrow/create.
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	var req CreateEscrowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Amount) > 0 {
		RespondError(w, r, http.StatusBadRequest, "validation", "amount is not accepted; the price comes from the accepted bid")
		return
	}
	packageID, ok := parseUUID(w, r, "packageId", req.PackageID)
	if !ok {
		return
	}
	bidID, ok := parseUUID(w, r, "bidId", req.BidID)
	if !ok {
		return
	}

	res, err := h.svc.Create(r.Context(), actor, service.CreateEscrowRequest{PackageID: packageID, BidID: bidID})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, CreateEscrowResponse{
		Payment:      newEscrowPaymentResponse(res.Payment),
		ClientSecret: res.ClientSecret,
		Fees:         newFeeBreakdownResponse(res.Fees),
	})
}

type EscrowPaymentEnvelope struct {
	Payment EscrowPaymentResponse `json:"payment"`
}

// Confirm handles POST /api/escrow/confirm/{packageId}.
func (h *EscrowHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	payment, err := h.svc.ConfirmHeld(r.Context(), actor, packageID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, EscrowPaymentEnvelope{Payment: newEscrowPaymentResponse(payment)})
}

type ReleaseEscrowResponse struct {
	Payment           EscrowPaymentResponse `json:"payment"`
	Fees              FeeBreakdownResponse  `json:"fees"`
	TransferReference string                `json:"transferReference"`
}

// Release handles POST /api/escrow/release/{packageId}.
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	res, err := h.svc.Release(r.Context(), actor, packageID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, ReleaseEscrowResponse{
		Payment:           newEscrowPaymentResponse(res.Payment),
		Fees:              newFeeBreakdownResponse(res.Fees),
		TransferReference: res.TransferReference,
	})
}

type RefundEscrowRequest struct {
	Reason string `json:"reason"`
}

// Refund handles POST /api/escrow/refund/{packageId}.
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	var req RefundEscrowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.svc.Refund(r.Context(), actor, packageID, req.Reason)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, EscrowPaymentEnvelope{Payment: newEscrowPaymentResponse(payment)})
}

type EscrowStatusResponse struct {
	Payment EscrowPaymentResponse `json:"payment"`
	Fees    FeeBreakdownResponse  `json:"fees"`
}

// Status handles GET /api/escrow/status/{packageId}.
func (h *EscrowHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	status, err := h.svc.Status(r.Context(), actor, packageID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, EscrowStatusResponse{
		Payment: newEscrowPaymentResponse(status.Payment),
		Fees:    newFeeBreakdownResponse(status.Fees),
	})
}

// PreviewFees handles GET /api/fees?amount=250.00.
func (h *EscrowHandler) PreviewFees(w http.ResponseWriter, r *http.Request) {
	amount, err := domain.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if !amount.IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "validation", "amount must be positive")
		return
	}
	RespondJSON(w, http.StatusOK, newFeeBreakdownResponse(h.svc.Fees().Calculate(amount)))
}
