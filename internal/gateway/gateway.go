// Package gateway abstracts the payment processor used for escrow holds,
// provider payouts and bid-pack checkouts. Amounts cross this boundary in
// integer minor units.
package gateway

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidEvent     = errors.New("invalid webhook event")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrTimeout          = errors.New("payment gateway timed out")
)

// Gateway is the payment processor contract.
type Gateway interface {
	// OpenHold creates an uncaptured authorization the payer confirms client-side.
	OpenHold(ctx context.Context, req HoldRequest) (Hold, error)
	HoldStatus(ctx context.Context, reference string) (HoldStatus, error)
	// Capture settles an authorized hold and returns the reference of the
	// resulting charge.
	Capture(ctx context.Context, reference, idempotencyKey string) (string, error)
	// ChargeReference looks up the charge behind an already captured hold.
	ChargeReference(ctx context.Context, reference string) (string, error)
	CancelHold(ctx context.Context, reference, reason, idempotencyKey string) error
	// Refund returns funds of an already captured hold.
	Refund(ctx context.Context, reference, reason, idempotencyKey string) error
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	CreateConnectedAccount(ctx context.Context, req ConnectedAccountRequest) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// ParseEvent verifies a webhook signature and decodes the event.
	ParseEvent(payload []byte, signature string) (Event, error)
}

type HoldRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Hold struct {
	Reference    string
	ClientSecret string
}

type HoldStatus string

const (
	HoldPending    HoldStatus = "pending"
	HoldAuthorized HoldStatus = "authorized"
	HoldCaptured   HoldStatus = "captured"
	HoldCanceled   HoldStatus = "canceled"
)

// TransferRequest pays a connected account. SourceTransaction names the
// captured charge that funds it.
type TransferRequest struct {
	AmountMinor       int64
	Currency          string
	Destination       string
	Note              string
	Group             string
	SourceTransaction string
	IdempotencyKey    string
}

type ConnectedAccountRequest struct {
	OwnerID      string
	Email        string
	BusinessName string
}

type LineItem struct {
	Name        string
	Description string
	AmountMinor int64
	Quantity    int64
}

type CheckoutRequest struct {
	LineItems         []LineItem
	Currency          string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventHoldAuthorized    EventType = "payment_intent.amount_capturable_updated"
)

// Event is the processor-neutral view of a verified webhook.
type Event struct {
	ID            string
	Type          EventType
	SessionID     string
	PaymentStatus string
	Reference     string
	AmountTotal   int64
	Metadata      map[string]string
}

// PaymentStatusPaid marks a checkout whose funds were collected.
const PaymentStatusPaid = "paid"
