package handler

import (
	"net/http"

	"github.com/mycarconcierge/marketplace/internal/service"
)

// MarketplaceHandler covers bids, job progress and package messages.
type MarketplaceHandler struct {
	svc *service.MarketplaceService
}

func NewMarketplaceHandler(svc *service.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc}
}

type SubmitBidRequest struct {
	PriceCents int64  `json:"priceCents"`
	Note       string `json:"note"`
}

// SubmitBid handles POST /api/packages/{packageId}/bids.
func (h *MarketplaceHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	var req SubmitBidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bid, err := h.svc.SubmitBid(r.Context(), actor, service.SubmitBidRequest{
		PackageID:  packageID,
		PriceCents: req.PriceCents,
		Note:       req.Note,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, bid)
}

// AcceptBid handles POST /api/bids/{bidId}/accept.
func (h *MarketplaceHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	bidID, ok := pathUUID(w, r, "bidId")
	if !ok {
		return
	}
	bid, err := h.svc.AcceptBid(r.Context(), actor, bidID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, bid)
}

// StartWork handles POST /api/packages/{packageId}/start.
func (h *MarketplaceHandler) StartWork(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	pkg, err := h.svc.StartWork(r.Context(), actor, packageID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, pkg)
}

// CompleteWork handles POST /api/packages/{packageId}/complete.
func (h *MarketplaceHandler) CompleteWork(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	pkg, err := h.svc.CompleteWork(r.Context(), actor, packageID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, pkg)
}

type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Body        string `json:"body"`
}

// SendMessage handles POST /api/packages/{packageId}/messages.
func (h *MarketplaceHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	packageID, ok := pathUUID(w, r, "packageId")
	if !ok {
		return
	}
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	recipientID, ok := parseUUID(w, r, "recipientId", req.RecipientID)
	if !ok {
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), actor, service.SendMessageRequest{
		PackageID:   packageID,
		RecipientID: recipientID,
		Body:        req.Body,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, msg)
}
