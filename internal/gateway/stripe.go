package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway implements Gateway with manual-capture PaymentIntents,
// Connect transfers and Checkout sessions.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway builds a client bound to one secret key. Nothing is
// registered globally so several gateways can coexist in tests.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return newStripeGateway(secretKey, webhookSecret, nil)
}

// newStripeGateway accepts explicit backends; nil uses the live API.
func newStripeGateway(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *StripeGateway) OpenHold(ctx context.Context, req HoldRequest) (Hold, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Hold{}, wrapStripe("open hold", err)
	}
	return Hold{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) HoldStatus(ctx context.Context, reference string) (HoldStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return "", wrapStripe("get hold", err)
	}
	return holdStatusFromIntent(pi.Status), nil
}

func holdStatusFromIntent(status stripe.PaymentIntentStatus) HoldStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return HoldAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return HoldCaptured
	case stripe.PaymentIntentStatusCanceled:
		return HoldCanceled
	default:
		return HoldPending
	}
}

func (g *StripeGateway) Capture(ctx context.Context, reference, idempotencyKey string) (string, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := g.api.PaymentIntents.Capture(reference, params)
	if err != nil {
		return "", wrapStripe("capture", err)
	}
	return latestCharge(pi)
}

func (g *StripeGateway) ChargeReference(ctx context.Context, reference string) (string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return "", wrapStripe("get hold", err)
	}
	return latestCharge(pi)
}

func latestCharge(pi *stripe.PaymentIntent) (string, error) {
	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return "", fmt.Errorf("payment intent %s has no charge", pi.ID)
	}
	return pi.LatestCharge.ID, nil
}

// CancelHold voids an uncaptured intent. The cancel endpoint only accepts an
// enumerated reason, so the free-text reason is stored on the intent first.
func (g *StripeGateway) CancelHold(ctx context.Context, reference, reason, idempotencyKey string) error {
	if reason != "" {
		note := &stripe.PaymentIntentParams{}
		note.AddMetadata("cancel_reason", reason)
		note.Context = ctx
		if idempotencyKey != "" {
			note.SetIdempotencyKey(idempotencyKey + "-reason")
		}
		if _, err := g.api.PaymentIntents.Update(reference, note); err != nil {
			return wrapStripe("annotate hold", err)
		}
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := g.api.PaymentIntents.Cancel(reference, params); err != nil {
		return wrapStripe("cancel hold", err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, reference, reason, idempotencyKey string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := g.api.Refunds.New(params); err != nil {
		return wrapStripe("refund", err)
	}
	return nil
}

func (g *StripeGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	if req.Note != "" {
		params.Description = stripe.String(req.Note)
	}
	if req.Group != "" {
		params.TransferGroup = stripe.String(req.Group)
	}
	// Funds a payout from the captured charge instead of the available balance.
	if req.SourceTransaction != "" {
		params.SourceTransaction = stripe.String(req.SourceTransaction)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return "", wrapStripe("transfer", err)
	}
	return tr.ID, nil
}

func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, req ConnectedAccountRequest) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.BusinessName != "" {
		params.BusinessProfile = &stripe.AccountBusinessProfileParams{Name: stripe.String(req.BusinessName)}
	}
	params.AddMetadata("owner_id", req.OwnerID)
	params.Context = ctx
	params.SetIdempotencyKey("account-" + req.OwnerID)

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return "", wrapStripe("create connected account", err)
	}
	return acct.ID, nil
}

func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return "", wrapStripe("create onboarding link", err)
	}
	return link.URL, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(li.Name)}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(li.AmountMinor),
				ProductData: product,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  items,
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, wrapStripe("create checkout session", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signature string) (Event, error) {
	if g.webhookSecret == "" {
		return Event{}, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeStripeEvent(evt)
}

func decodeStripeEvent(evt stripe.Event) (Event, error) {
	out := Event{ID: evt.ID, Type: EventType(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		out.SessionID = sess.ID
		out.PaymentStatus = string(sess.PaymentStatus)
		out.AmountTotal = sess.AmountTotal
		out.Metadata = sess.Metadata
	case EventHoldAuthorized:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		out.Reference = pi.ID
		out.AmountTotal = pi.AmountCapturable
		out.Metadata = pi.Metadata
	}
	return out, nil
}

func wrapStripe(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("stripe %s: %s (%s): %w", op, se.Msg, se.Code, err)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
