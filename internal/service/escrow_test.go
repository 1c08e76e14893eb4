package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowLifecycleReleasesProviderShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, 25_000)

	created, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateCreated, created.Payment.State)
	require.Equal(t, int64(25_000), created.Payment.GrossCents)
	require.NotEmpty(t, created.ClientSecret)
	require.Equal(t, "5.00", created.Fees.PlatformFee.StringFixed(2))
	require.Equal(t, "245.00", created.Fees.ProviderAmount.StringFixed(2))

	held, err := f.escrow.ConfirmHeld(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, held.State)
	require.NotNil(t, held.HeldAt)

	again, err := f.escrow.ConfirmHeld(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, again.State)

	released, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateReleased, released.Payment.State)
	require.NotEmpty(t, released.TransferReference)
	require.NotNil(t, released.Payment.TransferReference)
	require.True(t, released.Fees.IsLossMaking())

	require.Len(t, f.gw.Transfers, 1)
	transfer := f.gw.Transfers[0]
	assert.Equal(t, int64(24_500), transfer.AmountMinor)
	assert.Equal(t, *f.provider.PayoutAccountID, transfer.Destination)
	assert.Equal(t, "escrow-"+released.Payment.ID.String()+"-transfer", transfer.IdempotencyKey)
	assert.NotEmpty(t, transfer.SourceTransaction)

	audit := f.store.Audit(released.Payment.ID)
	actions := make([]string, 0, len(audit))
	for _, a := range audit {
		actions = append(actions, a.Action)
	}
	require.Equal(t, []string{"created", "held", "captured", "released"}, actions)

	require.Equal(t,
		[]domain.NotificationType{domain.NotificationPaymentHeld, domain.NotificationPaymentReleased},
		notificationTypes(f.store.Notifications(f.provider.ID)),
	)
}

func TestEscrowCreateRejectsSecondActivePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, 10_000)
	req := CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID}

	_, err := f.escrow.Create(ctx, f.memberActor(), req)
	require.NoError(t, err)

	_, err = f.escrow.Create(ctx, f.memberActor(), req)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, 1, f.gw.Calls("open_hold"))
	require.Len(t, f.store.Escrows(pkg.ID), 1)
}

func TestEscrowCreateAfterTerminalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	refundedPkg, refunded := f.heldPayment(t, 10_000)
	_, err := f.escrow.Refund(ctx, f.providerActor(), refundedPkg.ID, "member cancelled")
	require.NoError(t, err)
	again, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: refundedPkg.ID, BidID: refunded.BidID})
	require.NoError(t, err)
	require.NotEqual(t, refunded.ID, again.Payment.ID)

	releasedPkg, released := f.heldPayment(t, 10_000)
	_, err = f.escrow.Release(ctx, f.memberActor(), releasedPkg.ID)
	require.NoError(t, err)
	_, err = f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: releasedPkg.ID, BidID: released.BidID})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestEscrowCreateValidatesCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, 10_000)

	_, err := f.escrow.Create(ctx, f.providerActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: uuid.New(), BidID: bid.ID})
	require.ErrorIs(t, err, domain.ErrNotFound)

	open := f.openPackage(t)
	_, err = f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: open.ID, BidID: bid.ID})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, f.gw.Calls("open_hold"))
}

func TestEscrowCreateGatewayFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	pkg, bid := f.acceptedPackage(t, 10_000)
	f.gw.FailNext("open_hold", 1)

	_, err := f.escrow.Create(context.Background(), f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.ErrorIs(t, err, domain.ErrGateway)
	require.Empty(t, f.store.Escrows(pkg.ID))
}

func TestEscrowConfirmWaitsForAuthorization(t *testing.T) {
	f := newFixture(t)
	f.gw.AutoAuthorize = false
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, 10_000)

	created, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.NoError(t, err)

	_, err = f.escrow.ConfirmHeld(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.escrow.ConfirmHeld(ctx, f.providerActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.gw.Authorize(created.Payment.GatewayReference))
	held, err := f.escrow.ConfirmHeld(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, held.State)
}

func TestEscrowReleaseRetriesTransferWithoutRecapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, held := f.heldPayment(t, 25_000)

	f.gw.FailNext("transfer", 1)
	_, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrGateway)

	status, err := f.escrow.Status(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, status.Payment.State)
	require.NotNil(t, status.Payment.CapturedAt)

	released, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateReleased, released.Payment.State)
	require.Equal(t, 1, f.gw.Calls("capture"))
	require.Equal(t, 2, f.gw.Calls("transfer"))
	require.Len(t, f.gw.Transfers, 1)

	charge, err := f.gw.ChargeReference(ctx, held.GatewayReference)
	require.NoError(t, err)
	require.Equal(t, charge, f.gw.Transfers[0].SourceTransaction)
}

func TestEscrowReleaseAfterLostCaptureReplyFundsTransferFromCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, held := f.heldPayment(t, 25_000)

	f.gw.LoseNextResponse("capture", 1)
	_, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrGateway)

	status, err := f.escrow.Status(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Nil(t, status.Payment.CapturedAt)

	released, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateReleased, released.Payment.State)

	charge, err := f.gw.ChargeReference(ctx, held.GatewayReference)
	require.NoError(t, err)
	require.Len(t, f.gw.Transfers, 1)
	require.Equal(t, charge, f.gw.Transfers[0].SourceTransaction)
}

func TestEscrowReleaseRequiresPayoutAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PayoutAccountID = nil
	f.store.PutProfile(f.provider)
	pkg, _ := f.heldPayment(t, 10_000)

	_, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Zero(t, f.gw.Calls("capture"))

	_, err = f.escrow.Release(ctx, f.providerActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEscrowRefundCancelsUncapturedHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, _ := f.heldPayment(t, 10_000)

	_, err := f.escrow.Refund(ctx, f.providerActor(), pkg.ID, "  ")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.escrow.Refund(ctx, f.memberActor(), pkg.ID, "changed my mind")
	require.ErrorIs(t, err, domain.ErrForbidden)

	refunded, err := f.escrow.Refund(ctx, f.providerActor(), pkg.ID, "part unavailable")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateRefunded, refunded.State)
	require.NotNil(t, refunded.RefundReason)
	require.Equal(t, "part unavailable", *refunded.RefundReason)
	require.Equal(t, 1, f.gw.Calls("cancel_hold"))
	require.Zero(t, f.gw.Calls("refund"))
	require.Empty(t, f.gw.Transfers)

	_, err = f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	require.Equal(t,
		[]domain.NotificationType{domain.NotificationPaymentHeld, domain.NotificationPaymentRefunded},
		notificationTypes(f.store.Notifications(f.provider.ID)),
	)
}

func TestEscrowRefundRetriesAfterLostCancelReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, _ := f.heldPayment(t, 10_000)

	f.gw.LoseNextResponse("cancel_hold", 1)
	f.gw.FailNext("hold_status", 1)
	_, err := f.escrow.Refund(ctx, f.providerActor(), pkg.ID, "part unavailable")
	require.ErrorIs(t, err, domain.ErrGateway)

	status, err := f.escrow.Status(ctx, f.providerActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, status.Payment.State)

	refunded, err := f.escrow.Refund(ctx, f.providerActor(), pkg.ID, "part unavailable")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateRefunded, refunded.State)
	require.Equal(t, 2, f.gw.Calls("cancel_hold"))
}

func TestEscrowRefundAcceptsHoldAlreadyCanceledAtGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, held := f.heldPayment(t, 10_000)

	require.NoError(t, f.gw.CancelHold(ctx, held.GatewayReference, "canceled from the dashboard", ""))

	refunded, err := f.escrow.Refund(ctx, SystemActor(), pkg.ID, "hold expired")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateRefunded, refunded.State)
}

func TestEscrowRefundAfterCaptureRefundsCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, held := f.heldPayment(t, 10_000)

	f.gw.FailNext("transfer", 1)
	_, err := f.escrow.Release(ctx, f.memberActor(), pkg.ID)
	require.ErrorIs(t, err, domain.ErrGateway)

	_, err = f.escrow.Refund(ctx, SystemActor(), pkg.ID, "dispute resolved for member")
	require.NoError(t, err)
	require.Equal(t, 1, f.gw.Calls("refund"))
	require.Zero(t, f.gw.Calls("cancel_hold"))
	require.True(t, f.gw.Refunded(held.GatewayReference))
}

func TestEscrowConcurrentReleaseAndRefundHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, held := f.heldPayment(t, 25_000)

	var (
		wg         sync.WaitGroup
		releaseErr error
		refundErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, releaseErr = f.escrow.Release(ctx, SystemActor(), pkg.ID)
	}()
	go func() {
		defer wg.Done()
		_, refundErr = f.escrow.Refund(ctx, SystemActor(), pkg.ID, "support decision")
	}()
	wg.Wait()

	require.True(t, (releaseErr == nil) != (refundErr == nil), "release=%v refund=%v", releaseErr, refundErr)

	status, err := f.escrow.Status(ctx, SystemActor(), pkg.ID)
	require.NoError(t, err)
	if releaseErr == nil {
		require.ErrorIs(t, refundErr, domain.ErrInvalidState)
		require.Equal(t, domain.EscrowStateReleased, status.Payment.State)
		require.Zero(t, f.gw.Calls("cancel_hold")+f.gw.Calls("refund"))
	} else {
		require.ErrorIs(t, releaseErr, domain.ErrInvalidState)
		require.Equal(t, domain.EscrowStateRefunded, status.Payment.State)
		require.Empty(t, f.gw.Transfers)
	}
	require.Len(t, f.store.Audit(held.ID), 3+boolToInt(releaseErr == nil))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestEscrowStatusVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pkg, _ := f.heldPayment(t, 10_000)

	status, err := f.escrow.Status(ctx, f.providerActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, "2.00", status.Fees.PlatformFee.StringFixed(2))

	_, err = f.escrow.Status(ctx, Actor{UserID: uuid.New()}, pkg.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.escrow.Status(ctx, f.memberActor(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcilePendingHoldsPromotesAuthorizedHolds(t *testing.T) {
	f := newFixture(t)
	f.gw.AutoAuthorize = false
	ctx := context.Background()

	authorizedPkg, authorizedBid := f.acceptedPackage(t, 10_000)
	authorized, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: authorizedPkg.ID, BidID: authorizedBid.ID})
	require.NoError(t, err)
	require.NoError(t, f.gw.Authorize(authorized.Payment.GatewayReference))

	pendingPkg, pendingBid := f.acceptedPackage(t, 10_000)
	_, err = f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pendingPkg.ID, BidID: pendingBid.ID})
	require.NoError(t, err)

	f.escrow.now = func() time.Time { return time.Now().Add(time.Hour) }
	promoted, err := f.escrow.ReconcilePendingHolds(ctx, 10*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	got, err := f.escrow.Status(ctx, SystemActor(), authorizedPkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, got.Payment.State)

	got, err = f.escrow.Status(ctx, SystemActor(), pendingPkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateCreated, got.Payment.State)
}

func TestConfirmHeldByReference(t *testing.T) {
	f := newFixture(t)
	f.gw.AutoAuthorize = false
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, 10_000)
	created, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.NoError(t, err)

	held, err := f.escrow.ConfirmHeldByReference(ctx, created.Payment.GatewayReference)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, held.State)
	require.Zero(t, f.gw.Calls("hold_status"))

	_, err = f.escrow.ConfirmHeldByReference(ctx, "pi_unknown")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
