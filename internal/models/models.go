package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
)

// Profile is a member or provider as mirrored from the auth store.
type Profile struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	BusinessName    string    `json:"business_name,omitempty"`
	Role            string    `json:"role"`
	PayoutAccountID *string   `json:"payout_account_id,omitempty"`
	BidCredits      int64     `json:"bid_credits"`
	CreatedAt       time.Time `json:"created_at"`
}

// Package is a service request posted by a member for one vehicle.
type Package struct {
	ID                 uuid.UUID  `json:"id"`
	MemberID           uuid.UUID  `json:"member_id"`
	Title              string     `json:"title"`
	VehicleDescription string     `json:"vehicle_description"`
	Status             string     `json:"status"`
	AcceptedBidID      *uuid.UUID `json:"accepted_bid_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Bid is a provider's priced offer on a package.
type Bid struct {
	ID         uuid.UUID `json:"id"`
	PackageID  uuid.UUID `json:"package_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PriceCents int64     `json:"price_cents"`
	Note       string    `json:"note,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// EscrowPayment is one payment lifecycle bound to a package and its accepted bid.
type EscrowPayment struct {
	ID                uuid.UUID          `json:"id"`
	PackageID         uuid.UUID          `json:"package_id"`
	BidID             uuid.UUID          `json:"bid_id"`
	MemberID          uuid.UUID          `json:"member_id"`
	ProviderID        uuid.UUID          `json:"provider_id"`
	GrossCents        int64              `json:"gross_cents"`
	Currency          string             `json:"currency"`
	State             domain.EscrowState `json:"state"`
	GatewayReference  string             `json:"gateway_reference_id"`
	TransferReference *string            `json:"transfer_reference,omitempty"`
	RefundReason      *string            `json:"refund_reason,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	HeldAt            *time.Time         `json:"held_at,omitempty"`
	CapturedAt        *time.Time         `json:"captured_at,omitempty"`
	ReleasedAt        *time.Time         `json:"released_at,omitempty"`
	RefundedAt        *time.Time         `json:"refunded_at,omitempty"`
}

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        uuid.UUID               `json:"id"`
	UserID    uuid.UUID               `json:"user_id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	LinkType  *string                 `json:"link_type,omitempty"`
	LinkID    *string                 `json:"link_id,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// CreditPurchase is the ledger entry for a completed bid-pack checkout.
type CreditPurchase struct {
	ID          uuid.UUID `json:"id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	PackID      string    `json:"pack_id"`
	SessionID   string    `json:"session_id"`
	Credits     int64     `json:"credits"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a direct message between a member and a provider about a package.
type Message struct {
	ID          uuid.UUID `json:"id"`
	PackageID   uuid.UUID `json:"package_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}
