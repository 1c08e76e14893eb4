package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestHoldStatusFromIntent(t *testing.T) {
	tests := []struct {
		status stripe.PaymentIntentStatus
		want   HoldStatus
	}{
		{stripe.PaymentIntentStatusRequiresPaymentMethod, HoldPending},
		{stripe.PaymentIntentStatusRequiresConfirmation, HoldPending},
		{stripe.PaymentIntentStatusRequiresCapture, HoldAuthorized},
		{stripe.PaymentIntentStatusSucceeded, HoldCaptured},
		{stripe.PaymentIntentStatusCanceled, HoldCanceled},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, holdStatusFromIntent(tt.status))
		})
	}
}

func TestDecodeStripeEvent(t *testing.T) {
	session, err := json.Marshal(map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   1999,
		"metadata":       map[string]string{"providerId": "p1", "packId": "pro"},
	})
	require.NoError(t, err)

	evt, err := decodeStripeEvent(stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: session},
	})
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	assert.Equal(t, "cs_test_1", evt.SessionID)
	assert.Equal(t, PaymentStatusPaid, evt.PaymentStatus)
	assert.Equal(t, int64(1999), evt.AmountTotal)
	assert.Equal(t, "pro", evt.Metadata["packId"])

	intent, err := json.Marshal(map[string]any{"id": "pi_1", "object": "payment_intent", "amount_capturable": 25000})
	require.NoError(t, err)
	evt, err = decodeStripeEvent(stripe.Event{
		ID:   "evt_2",
		Type: "payment_intent.amount_capturable_updated",
		Data: &stripe.EventData{Raw: intent},
	})
	require.NoError(t, err)
	assert.Equal(t, EventHoldAuthorized, evt.Type)
	assert.Equal(t, "pi_1", evt.Reference)

	_, err = NewStripeGateway("sk_test_x", "whsec_x").ParseEvent(session, "t=1,v1=bad")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

type stripeCall struct {
	route          string
	idempotencyKey string
	form           url.Values
}

// newStripeTestGateway points a gateway at a local server answering each
// "METHOD /path" route with a canned JSON body.
func newStripeTestGateway(t *testing.T, routes map[string]string) (*StripeGateway, func() []stripeCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []stripeCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		route := r.Method + " " + r.URL.Path
		mu.Lock()
		calls = append(calls, stripeCall{route: route, idempotencyKey: r.Header.Get("Idempotency-Key"), form: r.PostForm})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		body, ok := routes[route]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			body = `{"error":{"type":"invalid_request_error","message":"no route"}}`
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	g := newStripeGateway("sk_test_x", "whsec_x", &stripe.Backends{API: backend})
	return g, func() []stripeCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]stripeCall(nil), calls...)
	}
}

func TestStripeCancelHoldRecordsReasonAndKey(t *testing.T) {
	g, calls := newStripeTestGateway(t, map[string]string{
		"POST /v1/payment_intents/pi_1":        `{"id":"pi_1","object":"payment_intent","status":"requires_capture"}`,
		"POST /v1/payment_intents/pi_1/cancel": `{"id":"pi_1","object":"payment_intent","status":"canceled"}`,
	})

	require.NoError(t, g.CancelHold(context.Background(), "pi_1", "part unavailable", "escrow-1-cancel"))

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "POST /v1/payment_intents/pi_1", got[0].route)
	assert.Equal(t, "part unavailable", got[0].form.Get("metadata[cancel_reason]"))
	assert.Equal(t, "escrow-1-cancel-reason", got[0].idempotencyKey)

	assert.Equal(t, "POST /v1/payment_intents/pi_1/cancel", got[1].route)
	assert.Equal(t, "escrow-1-cancel", got[1].idempotencyKey)
	assert.Equal(t, "requested_by_customer", got[1].form.Get("cancellation_reason"))
}

func TestStripeTransferIsFundedByCapturedCharge(t *testing.T) {
	g, calls := newStripeTestGateway(t, map[string]string{
		"POST /v1/payment_intents/pi_1/capture": `{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1"}`,
		"GET /v1/payment_intents/pi_1":          `{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1"}`,
		"GET /v1/payment_intents/pi_2":          `{"id":"pi_2","object":"payment_intent","status":"requires_capture"}`,
		"POST /v1/transfers":                    `{"id":"tr_1","object":"transfer"}`,
	})
	ctx := context.Background()

	charge, err := g.Capture(ctx, "pi_1", "escrow-1-capture")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", charge)

	looked, err := g.ChargeReference(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", looked)

	_, err = g.ChargeReference(ctx, "pi_2")
	require.Error(t, err)

	ref, err := g.Transfer(ctx, TransferRequest{
		AmountMinor:       24500,
		Currency:          "usd",
		Destination:       "acct_1",
		SourceTransaction: charge,
		IdempotencyKey:    "escrow-1-transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", ref)

	got := calls()
	transfer := got[len(got)-1]
	assert.Equal(t, "POST /v1/transfers", transfer.route)
	assert.Equal(t, "ch_1", transfer.form.Get("source_transaction"))
	assert.Equal(t, "24500", transfer.form.Get("amount"))
	assert.Equal(t, "escrow-1-transfer", transfer.idempotencyKey)
}
