package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutUsesCatalogPrice(t *testing.T) {
	f := newFixture(t)

	res, err := f.checkout.CreateCheckout(context.Background(), f.providerActor(), "pro", f.provider.ID.String())
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	require.Contains(t, res.URL, res.SessionID)

	require.Len(t, f.gw.Checkouts, 1)
	req := f.gw.Checkouts[0]
	require.Len(t, req.LineItems, 1)
	require.Equal(t, int64(1999), req.LineItems[0].AmountMinor)
	require.Equal(t, int64(1), req.LineItems[0].Quantity)
	require.Equal(t, "usd", req.Currency)
	require.Equal(t, "pro", req.Metadata["packId"])
	require.Equal(t, f.provider.ID.String(), req.Metadata["providerId"])
	require.Equal(t, "25", req.Metadata["bidCredits"])
	require.Equal(t, "5", req.Metadata["bonusCredits"])
}

func TestCreateCheckoutRejectsUnknownPackBeforeGateway(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.CreateCheckout(context.Background(), f.providerActor(), "mega", f.provider.ID.String())
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, f.gw.Calls("create_checkout"))
}

func TestCreateCheckoutChecksProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.checkout.CreateCheckout(ctx, f.memberActor(), "starter", f.provider.ID.String())
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.checkout.CreateCheckout(ctx, f.providerActor(), "starter", "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrValidation)

	stranger := uuid.New()
	_, err = f.checkout.CreateCheckout(ctx, SystemActor(), "starter", stranger.String())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, f.gw.Calls("create_checkout"))
}

func TestCompleteCheckoutGrantsOncePerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	evt := gateway.Event{
		ID:            "evt_1",
		Type:          gateway.EventCheckoutCompleted,
		SessionID:     "cs_test_1",
		PaymentStatus: gateway.PaymentStatusPaid,
		AmountTotal:   1999,
		Metadata:      map[string]string{"providerId": f.provider.ID.String(), "packId": "pro", "bidCredits": "999"},
	}

	granted, err := f.checkout.CompleteCheckout(ctx, evt)
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, int64(31), f.credits(t, f.provider.ID))

	granted, err = f.checkout.CompleteCheckout(ctx, evt)
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, int64(31), f.credits(t, f.provider.ID))
}

func TestCompleteCheckoutIgnoresUnpaidSession(t *testing.T) {
	f := newFixture(t)

	granted, err := f.checkout.CompleteCheckout(context.Background(), gateway.Event{
		SessionID:     "cs_unpaid",
		PaymentStatus: "unpaid",
		Metadata:      map[string]string{"providerId": f.provider.ID.String(), "packId": "starter"},
	})
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, int64(1), f.credits(t, f.provider.ID))
}

func TestCompleteCheckoutRejectsUnknownPack(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.CompleteCheckout(context.Background(), gateway.Event{
		SessionID:     "cs_bad",
		PaymentStatus: gateway.PaymentStatusPaid,
		Metadata:      map[string]string{"providerId": f.provider.ID.String(), "packId": "gold"},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, int64(1), f.credits(t, f.provider.ID))
}
