package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/lock"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/testutil/memstore"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

// fixture wires every service against the in-memory store and mock gateway.
type fixture struct {
	store *memstore.Store
	gw    *gateway.MockGateway

	notifications *NotificationService
	escrow        *EscrowService
	checkout      *CheckoutService
	webhooks      *WebhookService
	marketplace   *MarketplaceService
	payouts       *PayoutAccountService

	member   models.Profile
	provider models.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fees, err := domain.NewFeeSchedule("0.02", "0.029", "0.30")
	require.NoError(t, err)

	store := memstore.New()
	gw := gateway.NewMockGateway(testWebhookSecret, false)
	notifications := NewNotificationService(store, "usd")
	escrow := NewEscrowService(store, gw, lock.NewMemoryLocker(), notifications, fees, "usd")
	escrow.lockWait = 2 * time.Second
	checkout := NewCheckoutService(store, gw, domain.DefaultBidPacks(), CheckoutConfig{
		Currency:   "usd",
		SuccessURL: "https://app.example.com/provider/credits?status=success",
		CancelURL:  "https://app.example.com/provider/credits?status=cancel",
	})

	f := &fixture{
		store:         store,
		gw:            gw,
		notifications: notifications,
		escrow:        escrow,
		checkout:      checkout,
		webhooks:      NewWebhookService(store, gw, escrow, checkout),
		marketplace:   NewMarketplaceService(store, notifications),
		payouts:       NewPayoutAccountService(store, gw, "https://app.example.com/"),
	}

	payout := "acct_provider_1"
	f.member = models.Profile{ID: uuid.New(), DisplayName: "Maya Member", Email: "maya@example.com", Role: "member"}
	f.provider = models.Profile{
		ID:              uuid.New(),
		DisplayName:     "Pat Provider",
		BusinessName:    "Torque Garage",
		Email:           "pat@example.com",
		Role:            "provider",
		PayoutAccountID: &payout,
		BidCredits:      1,
	}
	store.PutProfile(f.member)
	store.PutProfile(f.provider)
	return f
}

// openPackage seeds an open package owned by the fixture member.
func (f *fixture) openPackage(t *testing.T) models.Package {
	t.Helper()
	pkg := models.Package{
		ID:                 uuid.New(),
		MemberID:           f.member.ID,
		Title:              "Brake pads and rotors",
		VehicleDescription: "2019 Honda Civic",
		Status:             domain.PackageStatusOpen,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	f.store.PutPackage(pkg)
	return pkg
}

// acceptedPackage seeds a package whose bid from the fixture provider was accepted.
func (f *fixture) acceptedPackage(t *testing.T, priceCents int64) (models.Package, models.Bid) {
	t.Helper()
	pkg := f.openPackage(t)
	bid := models.Bid{
		ID:         uuid.New(),
		PackageID:  pkg.ID,
		ProviderID: f.provider.ID,
		PriceCents: priceCents,
		Status:     domain.BidStatusAccepted,
		CreatedAt:  time.Now().UTC(),
	}
	f.store.PutBid(bid)
	pkg.Status = domain.PackageStatusAccepted
	pkg.AcceptedBidID = &bid.ID
	f.store.PutPackage(pkg)
	return pkg, bid
}

// heldPayment runs create and confirm for a fresh accepted package.
func (f *fixture) heldPayment(t *testing.T, priceCents int64) (models.Package, *models.EscrowPayment) {
	t.Helper()
	ctx := context.Background()
	pkg, bid := f.acceptedPackage(t, priceCents)
	_, err := f.escrow.Create(ctx, f.memberActor(), CreateEscrowRequest{PackageID: pkg.ID, BidID: bid.ID})
	require.NoError(t, err)
	held, err := f.escrow.ConfirmHeld(ctx, f.memberActor(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStateHeld, held.State)
	return pkg, held
}

func (f *fixture) memberActor() Actor {
	return Actor{UserID: f.member.ID, Role: "authenticated"}
}

func (f *fixture) providerActor() Actor {
	return Actor{UserID: f.provider.ID, Role: "authenticated"}
}

func (f *fixture) credits(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p.BidCredits
}

func notificationTypes(ns []models.Notification) []domain.NotificationType {
	out := make([]domain.NotificationType, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Type)
	}
	return out
}
