package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_HoldLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway("secret", false)
	g.AutoAuthorize = false

	hold, err := g.OpenHold(ctx, HoldRequest{AmountMinor: 25000, Currency: "usd"})
	require.NoError(t, err)
	assert.NotEmpty(t, hold.Reference)
	assert.Equal(t, hold.Reference+"_secret", hold.ClientSecret)

	status, err := g.HoldStatus(ctx, hold.Reference)
	require.NoError(t, err)
	assert.Equal(t, HoldPending, status)

	_, err = g.Capture(ctx, hold.Reference, "k1")
	require.Error(t, err, "pending holds cannot be captured")

	require.NoError(t, g.Authorize(hold.Reference))
	charge, err := g.Capture(ctx, hold.Reference, "k1")
	require.NoError(t, err)
	assert.NotEmpty(t, charge)
	replayed, err := g.Capture(ctx, hold.Reference, "k1")
	require.NoError(t, err, "same key replays")
	assert.Equal(t, charge, replayed)
	_, err = g.Capture(ctx, hold.Reference, "k2")
	require.Error(t, err)

	looked, err := g.ChargeReference(ctx, hold.Reference)
	require.NoError(t, err)
	assert.Equal(t, charge, looked)

	require.Error(t, g.CancelHold(ctx, hold.Reference, "late", "c1"))
	require.NoError(t, g.Refund(ctx, hold.Reference, "customer requested", "r1"))
	assert.True(t, g.Refunded(hold.Reference))
}

func TestMockGateway_CancelHoldReplaysOnlyForSameKey(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway("secret", false)
	hold, err := g.OpenHold(ctx, HoldRequest{AmountMinor: 5000, Currency: "usd"})
	require.NoError(t, err)

	g.LoseNextResponse("cancel_hold", 1)
	require.ErrorIs(t, g.CancelHold(ctx, hold.Reference, "provider declined", "c1"), ErrMockUnavailable)
	status, err := g.HoldStatus(ctx, hold.Reference)
	require.NoError(t, err)
	assert.Equal(t, HoldCanceled, status, "the lost reply still canceled the hold")

	require.NoError(t, g.CancelHold(ctx, hold.Reference, "provider declined", "c1"))
	require.Error(t, g.CancelHold(ctx, hold.Reference, "provider declined", "c2"))
	require.Error(t, g.CancelHold(ctx, hold.Reference, "provider declined", ""))

	_, err = g.ChargeReference(ctx, hold.Reference)
	require.Error(t, err)
}

func TestMockGateway_TransferChecksSourceCharge(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway("secret", false)
	hold, err := g.OpenHold(ctx, HoldRequest{AmountMinor: 25000, Currency: "usd"})
	require.NoError(t, err)
	charge, err := g.Capture(ctx, hold.Reference, "k1")
	require.NoError(t, err)

	_, err = g.Transfer(ctx, TransferRequest{AmountMinor: 24500, Currency: "usd", Destination: "acct_1", SourceTransaction: "ch_unknown"})
	require.Error(t, err)

	_, err = g.Transfer(ctx, TransferRequest{AmountMinor: 24500, Currency: "usd", Destination: "acct_1", SourceTransaction: charge})
	require.NoError(t, err)
	require.Len(t, g.Transfers, 1)
	assert.Equal(t, charge, g.Transfers[0].SourceTransaction)
}

func TestMockGateway_TransferIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway("secret", false)
	req := TransferRequest{AmountMinor: 24500, Currency: "usd", Destination: "acct_1", IdempotencyKey: "escrow-1-transfer"}

	first, err := g.Transfer(ctx, req)
	require.NoError(t, err)
	second, err := g.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, g.Transfers, 1)
	assert.Equal(t, 2, g.Calls("transfer"))
}

func TestMockGateway_FailNext(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway("secret", false)
	g.FailNext("open_hold", 1)

	_, err := g.OpenHold(ctx, HoldRequest{AmountMinor: 100, Currency: "usd"})
	require.ErrorIs(t, err, ErrMockUnavailable)

	_, err = g.OpenHold(ctx, HoldRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
}

func TestMockGateway_ParseEvent(t *testing.T) {
	g := NewMockGateway("secret", false)
	payload, sig, err := g.EncodeEvent(Event{
		ID:            "evt_1",
		Type:          EventCheckoutCompleted,
		SessionID:     "cs_1",
		PaymentStatus: PaymentStatusPaid,
		Metadata:      map[string]string{"packId": "pro"},
	})
	require.NoError(t, err)

	evt, err := g.ParseEvent(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, "cs_1", evt.SessionID)
	assert.Equal(t, "pro", evt.Metadata["packId"])

	_, err = g.ParseEvent(payload, "sha256=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)

	skipping := NewMockGateway("", true)
	_, err = skipping.ParseEvent([]byte(`{"id":"evt_2","type":"x"}`), "")
	require.NoError(t, err)

	_, err = g.ParseEvent([]byte(`{"type":"x"}`), g.Sign([]byte(`{"type":"x"}`)))
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestInstrumented_TimeoutIsReported(t *testing.T) {
	inner := NewMockGateway("secret", false)
	inner.Latency = 200 * time.Millisecond
	g := NewInstrumented(inner, 20*time.Millisecond)

	_, err := g.OpenHold(context.Background(), HoldRequest{AmountMinor: 100, Currency: "usd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}
