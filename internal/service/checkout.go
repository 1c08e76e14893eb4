package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/observability"
	"github.com/mycarconcierge/marketplace/internal/repository"
	"go.uber.org/zap"
)

// Metadata keys written on checkout sessions and read back from webhooks.
const (
	metaProviderID   = "providerId"
	metaPackID       = "packId"
	metaBidCredits   = "bidCredits"
	metaBonusCredits = "bonusCredits"
)

// CheckoutConfig holds the redirect targets of bid-pack checkouts.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutService sells bid credits. Prices and quantities always come from
// the server catalog.
type CheckoutService struct {
	store   CreditStore
	gateway gateway.Gateway
	catalog *domain.BidPackCatalog
	cfg     CheckoutConfig
	now     func() time.Time
}

func NewCheckoutService(store CreditStore, gw gateway.Gateway, catalog *domain.BidPackCatalog, cfg CheckoutConfig) *CheckoutService {
	cfg.Currency = domain.NormalizeCurrency(cfg.Currency)
	return &CheckoutService{store: store, gateway: gw, catalog: catalog, cfg: cfg, now: time.Now}
}

// CheckoutResult is where the provider completes the purchase.
type CheckoutResult struct {
	URL       string
	SessionID string
}

// ListPacks returns the catalog ordered by price.
func (s *CheckoutService) ListPacks() []domain.BidPack {
	return s.catalog.List()
}

// CreateCheckout opens a gateway checkout session for one bid pack.
func (s *CheckoutService) CreateCheckout(ctx context.Context, actor Actor, packID, providerID string) (*CheckoutResult, error) {
	packID = strings.TrimSpace(packID)
	pack, ok := s.catalog.Lookup(packID)
	if !ok {
		return nil, domain.Validationf("unknown bid pack: %q", packID)
	}
	provider, err := uuid.Parse(strings.TrimSpace(providerID))
	if err != nil || provider == uuid.Nil {
		return nil, domain.Validationf("providerId must be a valid identifier")
	}
	if !actor.Is(provider) {
		return nil, domain.Forbiddenf("bid credits can only be bought for your own account")
	}
	if _, err := s.store.GetProfile(ctx, provider); err != nil {
		return nil, storeError(err, "provider")
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		LineItems: []gateway.LineItem{{
			Name:        pack.Name,
			Description: describePack(pack),
			AmountMinor: pack.PriceMinorUnits,
			Quantity:    1,
		}},
		Currency:          s.cfg.Currency,
		SuccessURL:        s.cfg.SuccessURL,
		CancelURL:         s.cfg.CancelURL,
		ClientReferenceID: provider.String(),
		Metadata: map[string]string{
			metaProviderID:   provider.String(),
			metaPackID:       pack.ID,
			metaBidCredits:   strconv.FormatInt(pack.BidCredits, 10),
			metaBonusCredits: strconv.FormatInt(pack.BonusCredits, 10),
		},
	})
	if err != nil {
		return nil, domain.GatewayFailure(err, "could not start checkout")
	}
	return &CheckoutResult{URL: sess.URL, SessionID: sess.ID}, nil
}

// CompleteCheckout grants the credits of a paid session exactly once.
// Quantities are re-derived from the catalog; metadata only names the pack.
func (s *CheckoutService) CompleteCheckout(ctx context.Context, evt gateway.Event) (bool, error) {
	if evt.PaymentStatus != gateway.PaymentStatusPaid {
		zap.L().Info("checkout completed without payment", zap.String("session_id", evt.SessionID), zap.String("payment_status", evt.PaymentStatus))
		return false, nil
	}
	if strings.TrimSpace(evt.SessionID) == "" {
		return false, domain.Validationf("checkout session id is missing")
	}
	pack, ok := s.catalog.Lookup(evt.Metadata[metaPackID])
	if !ok {
		return false, domain.Validationf("checkout references unknown bid pack %q", evt.Metadata[metaPackID])
	}
	provider, err := uuid.Parse(evt.Metadata[metaProviderID])
	if err != nil {
		return false, domain.Validationf("checkout carries an invalid provider id")
	}
	if evt.AmountTotal != 0 && evt.AmountTotal != pack.PriceMinorUnits {
		zap.L().Warn("checkout amount differs from catalog price",
			zap.String("session_id", evt.SessionID),
			zap.Int64("amount_total", evt.AmountTotal),
			zap.Int64("catalog_price", pack.PriceMinorUnits),
		)
	}

	granted, err := s.store.GrantBidCredits(ctx, repository.CreditGrant{
		ProviderID:  provider,
		PackID:      pack.ID,
		SessionID:   evt.SessionID,
		Credits:     pack.TotalCredits(),
		AmountCents: pack.PriceMinorUnits,
		At:          s.now().UTC(),
	})
	if err != nil {
		observability.IncrementCreditGrant(pack.ID, "error")
		return false, storeError(err, "provider")
	}
	if granted {
		observability.IncrementCreditGrant(pack.ID, "granted")
	} else {
		observability.IncrementCreditGrant(pack.ID, "duplicate")
	}
	return granted, nil
}

func describePack(p domain.BidPack) string {
	if p.BonusCredits > 0 {
		return fmt.Sprintf("%d bid credits + %d bonus", p.BidCredits, p.BonusCredits)
	}
	return fmt.Sprintf("%d bid credits", p.BidCredits)
}
