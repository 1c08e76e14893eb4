package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/lock"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/observability"
	"github.com/mycarconcierge/marketplace/internal/repository"
	"go.uber.org/zap"
)

const defaultLockWait = 15 * time.Second

// PaymentNotifier receives escrow lifecycle events. Failures never roll
// back a transition.
type PaymentNotifier interface {
	PaymentHeld(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error)
	PaymentReleased(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error)
	PaymentRefunded(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error)
}

// EscrowService coordinates the payment lifecycle of a package:
// none -> created -> held -> released | refunded.
//
// Every state-changing operation runs inside a per-package critical section
// and persists through a conditional update on the expected prior state, so
// a concurrent release and refund resolve to exactly one winner.
type EscrowService struct {
	store    EscrowStore
	gateway  gateway.Gateway
	locker   lock.Locker
	notifier PaymentNotifier
	fees     domain.FeeSchedule
	currency string
	lockWait time.Duration
	now      func() time.Time
}

func NewEscrowService(store EscrowStore, gw gateway.Gateway, locker lock.Locker, notifier PaymentNotifier, fees domain.FeeSchedule, currency string) *EscrowService {
	return &EscrowService{
		store:    store,
		gateway:  gw,
		locker:   locker,
		notifier: notifier,
		fees:     fees,
		currency: domain.NormalizeCurrency(currency),
		lockWait: defaultLockWait,
		now:      time.Now,
	}
}

// CreateEscrowRequest identifies the package and its accepted bid. The
// amount always comes from the bid.
type CreateEscrowRequest struct {
	PackageID uuid.UUID
	BidID     uuid.UUID
}

// CreateEscrowResult carries the client secret the payer needs to authorize the hold.
type CreateEscrowResult struct {
	Payment      *models.EscrowPayment
	ClientSecret string
	Fees         domain.FeeBreakdown
}

// EscrowStatus is the read model returned by Status.
type EscrowStatus struct {
	Payment *models.EscrowPayment
	Fees    domain.FeeBreakdown
}

// ReleaseResult describes a completed payout.
type ReleaseResult struct {
	Payment           *models.EscrowPayment
	Fees              domain.FeeBreakdown
	TransferReference string
}

// Fees exposes the configured schedule for previews.
func (s *EscrowService) Fees() domain.FeeSchedule {
	return s.fees
}

func (s *EscrowService) lockPackage(ctx context.Context, packageID uuid.UUID) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lctx, "escrow:package:"+packageID.String())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domain.InvalidStatef("another payment operation is in progress for this package")
		}
		return nil, fmt.Errorf("lock package: %w", err)
	}
	return unlock, nil
}

// Create opens a gateway hold for the accepted bid's price and records the
// payment in the created state.
func (s *EscrowService) Create(ctx context.Context, actor Actor, req CreateEscrowRequest) (*CreateEscrowResult, error) {
	if req.PackageID == uuid.Nil || req.BidID == uuid.Nil {
		return nil, domain.Validationf("packageId and bidId are required")
	}
	pkg, err := s.store.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, storeError(err, "package")
	}
	bid, err := s.store.GetBid(ctx, req.BidID)
	if err != nil {
		return nil, storeError(err, "bid")
	}
	if bid.PackageID != pkg.ID {
		return nil, domain.Validationf("bid does not belong to this package")
	}
	if !actor.Is(pkg.MemberID) {
		return nil, domain.Forbiddenf("only the package owner can pay for this package")
	}
	if pkg.AcceptedBidID == nil || *pkg.AcceptedBidID != bid.ID || bid.Status != domain.BidStatusAccepted {
		return nil, domain.InvalidStatef("bid has not been accepted for this package")
	}
	if bid.PriceCents <= 0 {
		return nil, domain.Validationf("bid amount must be positive")
	}

	unlock, err := s.lockPackage(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if active, err := s.store.ActiveEscrow(ctx, pkg.ID); err == nil {
		return nil, domain.InvalidStatef("an escrow payment is already %s for this package", active.State)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "escrow payment")
	}
	if latest, err := s.store.LatestEscrow(ctx, pkg.ID); err == nil && latest.State == domain.EscrowStateReleased {
		return nil, domain.InvalidStatef("this package has already been paid")
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "escrow payment")
	}

	escrowID := uuid.New()
	hold, err := s.gateway.OpenHold(ctx, gateway.HoldRequest{
		AmountMinor: bid.PriceCents,
		Currency:    s.currency,
		Description: "My Car Concierge: " + pkg.Title,
		Metadata: map[string]string{
			"escrow_id":   escrowID.String(),
			"package_id":  pkg.ID.String(),
			"bid_id":      bid.ID.String(),
			"member_id":   pkg.MemberID.String(),
			"provider_id": bid.ProviderID.String(),
		},
		IdempotencyKey: idempotencyKey(escrowID, "hold"),
	})
	if err != nil {
		observability.IncrementEscrowTransition(domain.EscrowStateNone.String(), domain.EscrowStateCreated.String(), "gateway_error")
		return nil, domain.GatewayFailure(err, "payment gateway could not open the hold")
	}

	payment, err := s.store.CreateEscrow(ctx, repository.CreateEscrowParams{
		ID:               escrowID,
		PackageID:        pkg.ID,
		BidID:            bid.ID,
		MemberID:         pkg.MemberID,
		ProviderID:       bid.ProviderID,
		GrossCents:       bid.PriceCents,
		Currency:         s.currency,
		GatewayReference: hold.Reference,
		CreatedAt:        s.now().UTC(),
		ActorID:          actor.ID(),
	})
	if err != nil {
		s.compensateHold(ctx, escrowID, hold.Reference, err)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.InvalidStatef("an escrow payment is already active for this package")
		}
		return nil, storeError(err, "escrow payment")
	}
	observability.IncrementEscrowTransition(domain.EscrowStateNone.String(), domain.EscrowStateCreated.String(), "ok")

	return &CreateEscrowResult{
		Payment:      payment,
		ClientSecret: hold.ClientSecret,
		Fees:         s.fees.CalculateMinor(payment.GrossCents),
	}, nil
}

// compensateHold cancels a hold that could not be recorded locally.
func (s *EscrowService) compensateHold(ctx context.Context, escrowID uuid.UUID, reference string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.CancelHold(ctx, reference, "escrow record could not be created", idempotencyKey(escrowID, "cancel")); err != nil {
		zap.L().Error("failed to cancel orphaned hold",
			zap.String("gateway_reference", reference),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// ConfirmHeld moves a created payment to held once the gateway reports the
// hold as authorized. Confirming a held payment again is a no-op.
func (s *EscrowService) ConfirmHeld(ctx context.Context, actor Actor, packageID uuid.UUID) (*models.EscrowPayment, error) {
	payment, err := s.store.LatestEscrow(ctx, packageID)
	if err != nil {
		return nil, s.missingEscrow(err)
	}
	if !actor.Is(payment.MemberID) {
		return nil, domain.Forbiddenf("only the package owner can confirm this payment")
	}
	return s.confirmHeld(ctx, packageID, payment.ID, actor.ID(), true)
}

// ConfirmHeldByReference is the webhook path. The gateway already told us
// the hold is authorized, so no status lookup is made.
func (s *EscrowService) ConfirmHeldByReference(ctx context.Context, reference string) (*models.EscrowPayment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.Validationf("gateway reference is required")
	}
	payment, err := s.store.EscrowByReference(ctx, reference)
	if err != nil {
		return nil, storeError(err, "escrow payment")
	}
	return s.confirmHeld(ctx, payment.PackageID, payment.ID, nil, false)
}

// confirmHeld promotes escrowID only while it is still the package's latest
// payment. Late evidence about an ended payment never touches its successor.
func (s *EscrowService) confirmHeld(ctx context.Context, packageID, escrowID uuid.UUID, actorID *uuid.UUID, verify bool) (*models.EscrowPayment, error) {
	unlock, err := s.lockPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := s.store.LatestEscrow(ctx, packageID)
	if err != nil {
		return nil, s.missingEscrow(err)
	}
	if payment.ID != escrowID {
		return nil, domain.InvalidStatef("payment %s has been superseded by %s", escrowID, payment.ID)
	}
	switch payment.State {
	case domain.EscrowStateHeld:
		return payment, nil
	case domain.EscrowStateCreated:
	default:
		return nil, domain.InvalidStatef("payment cannot be confirmed in state %s", payment.State)
	}

	if verify {
		status, err := s.gateway.HoldStatus(ctx, payment.GatewayReference)
		if err != nil {
			return nil, domain.GatewayFailure(err, "could not verify the hold with the payment gateway")
		}
		if status != gateway.HoldAuthorized {
			return nil, domain.InvalidStatef("payment has not been authorized yet (gateway status %s)", status)
		}
	}

	updated, err := s.store.TransitionEscrow(ctx, repository.EscrowTransition{
		EscrowID: payment.ID,
		From:     domain.EscrowStateCreated,
		To:       domain.EscrowStateHeld,
		At:       s.now().UTC(),
		ActorID:  actorID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			current, getErr := s.store.LatestEscrow(ctx, packageID)
			if getErr == nil && current.ID == payment.ID && current.State == domain.EscrowStateHeld {
				return current, nil
			}
			return nil, domain.InvalidStatef("payment changed state while confirming")
		}
		return nil, storeError(err, "escrow payment")
	}
	observability.IncrementEscrowTransition(domain.EscrowStateCreated.String(), domain.EscrowStateHeld.String(), "ok")
	s.notify(ctx, updated)
	return updated, nil
}

// Release captures the hold and transfers the provider's share.
//
// Capture success is recorded before the transfer so a retry after a
// failed transfer never captures twice; the payment stays held until the
// transfer succeeds.
func (s *EscrowService) Release(ctx context.Context, actor Actor, packageID uuid.UUID) (*ReleaseResult, error) {
	unlock, err := s.lockPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	// The caller going away must not abandon a capture or transfer midway.
	ctx = context.WithoutCancel(ctx)

	payment, err := s.store.LatestEscrow(ctx, packageID)
	if err != nil {
		return nil, s.missingEscrow(err)
	}
	if !actor.Is(payment.MemberID) {
		return nil, domain.Forbiddenf("only the package owner can release this payment")
	}
	if payment.State != domain.EscrowStateHeld {
		return nil, domain.InvalidStatef("payment must be held to release, current state: %s", payment.State)
	}
	provider, err := s.store.GetProfile(ctx, payment.ProviderID)
	if err != nil {
		return nil, storeError(err, "provider")
	}
	if provider.PayoutAccountID == nil || *provider.PayoutAccountID == "" {
		return nil, domain.InvalidStatef("provider has not set up a payout account")
	}

	fees := s.fees.CalculateMinor(payment.GrossCents)

	var charge string
	if payment.CapturedAt == nil {
		charge, err = s.gateway.Capture(ctx, payment.GatewayReference, idempotencyKey(payment.ID, "capture"))
		if err != nil {
			observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateReleased.String(), "gateway_error")
			return nil, domain.GatewayFailure(err, "payment capture failed; the payment is still held and release can be retried")
		}
		if err := s.store.MarkEscrowCaptured(ctx, payment.ID, s.now().UTC(), actor.ID()); err != nil {
			return nil, storeError(err, "escrow payment")
		}
	} else {
		charge, err = s.gateway.ChargeReference(ctx, payment.GatewayReference)
		if err != nil {
			return nil, domain.GatewayFailure(err, "could not look up the captured charge; the payment is still held and release can be retried")
		}
	}

	transferRef, err := s.gateway.Transfer(ctx, gateway.TransferRequest{
		AmountMinor:       fees.ProviderAmountMinor(),
		Currency:          payment.Currency,
		Destination:       *provider.PayoutAccountID,
		Note:              fmt.Sprintf("Payout for package %s", payment.PackageID),
		Group:             "package-" + payment.PackageID.String(),
		SourceTransaction: charge,
		IdempotencyKey:    idempotencyKey(payment.ID, "transfer"),
	})
	if err != nil {
		observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateReleased.String(), "gateway_error")
		return nil, domain.GatewayFailure(err, "provider transfer failed; the payment is still held and release can be retried")
	}

	updated, err := s.store.TransitionEscrow(ctx, repository.EscrowTransition{
		EscrowID:          payment.ID,
		From:              domain.EscrowStateHeld,
		To:                domain.EscrowStateReleased,
		At:                s.now().UTC(),
		TransferReference: &transferRef,
		ActorID:           actor.ID(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateReleased.String(), "conflict")
			return nil, domain.InvalidStatef("payment is no longer held")
		}
		return nil, storeError(err, "escrow payment")
	}
	observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateReleased.String(), "ok")

	lossMaking := fees.IsLossMaking()
	observability.RecordRelease(domain.ToMinorUnits(fees.PlatformFee), lossMaking)
	if lossMaking {
		zap.L().Warn("released payment is loss-making for the platform",
			zap.String("escrow_id", updated.ID.String()),
			zap.String("gross", fees.TotalAmount.StringFixed(2)),
			zap.String("net_platform_revenue", fees.NetPlatformRevenue.StringFixed(2)),
		)
	}
	s.notify(ctx, updated)

	return &ReleaseResult{Payment: updated, Fees: fees, TransferReference: transferRef}, nil
}

// Refund returns a held payment to the member. An uncaptured hold is
// canceled; a captured one is refunded.
func (s *EscrowService) Refund(ctx context.Context, actor Actor, packageID uuid.UUID, reason string) (*models.EscrowPayment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validationf("refund reason is required")
	}
	if len(reason) > 500 {
		return nil, domain.Validationf("refund reason must be at most 500 characters")
	}

	unlock, err := s.lockPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	payment, err := s.store.LatestEscrow(ctx, packageID)
	if err != nil {
		return nil, s.missingEscrow(err)
	}
	if !actor.Is(payment.ProviderID) {
		return nil, domain.Forbiddenf("only the provider or support can refund this payment")
	}
	if payment.State != domain.EscrowStateHeld {
		return nil, domain.InvalidStatef("payment must be held to refund, current state: %s", payment.State)
	}

	if payment.CapturedAt != nil {
		err = s.gateway.Refund(ctx, payment.GatewayReference, reason, idempotencyKey(payment.ID, "refund"))
	} else {
		err = s.cancelHold(ctx, payment, reason)
	}
	if err != nil {
		observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateRefunded.String(), "gateway_error")
		return nil, domain.GatewayFailure(err, "refund failed at the payment gateway; the payment is still held")
	}

	updated, err := s.store.TransitionEscrow(ctx, repository.EscrowTransition{
		EscrowID:     payment.ID,
		From:         domain.EscrowStateHeld,
		To:           domain.EscrowStateRefunded,
		At:           s.now().UTC(),
		RefundReason: &reason,
		ActorID:      actor.ID(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateRefunded.String(), "conflict")
			return nil, domain.InvalidStatef("payment is no longer held")
		}
		return nil, storeError(err, "escrow payment")
	}
	observability.IncrementEscrowTransition(domain.EscrowStateHeld.String(), domain.EscrowStateRefunded.String(), "ok")
	s.notify(ctx, updated)
	return updated, nil
}

// cancelHold voids an uncaptured hold. A hold the gateway already reports as
// canceled counts as done so a retry after a lost reply can finish.
func (s *EscrowService) cancelHold(ctx context.Context, payment *models.EscrowPayment, reason string) error {
	err := s.gateway.CancelHold(ctx, payment.GatewayReference, reason, idempotencyKey(payment.ID, "cancel"))
	if err == nil {
		return nil
	}
	status, statusErr := s.gateway.HoldStatus(ctx, payment.GatewayReference)
	if statusErr == nil && status == gateway.HoldCanceled {
		zap.L().Info("hold was already canceled at the gateway", zap.String("escrow_id", payment.ID.String()))
		return nil
	}
	return err
}

// Status reads the latest payment of a package.
func (s *EscrowService) Status(ctx context.Context, actor Actor, packageID uuid.UUID) (*EscrowStatus, error) {
	payment, err := s.store.LatestEscrow(ctx, packageID)
	if err != nil {
		return nil, s.missingEscrow(err)
	}
	if !actor.Is(payment.MemberID) && !actor.Is(payment.ProviderID) {
		return nil, domain.Forbiddenf("you are not a party to this payment")
	}
	return &EscrowStatus{Payment: payment, Fees: s.fees.CalculateMinor(payment.GrossCents)}, nil
}

// ReconcilePendingHolds promotes created payments whose holds the gateway
// reports as authorized. It covers webhooks that never arrived.
func (s *EscrowService) ReconcilePendingHolds(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	stale, err := s.store.ListStaleCreatedEscrows(ctx, s.now().UTC().Add(-minAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list pending holds: %w", err)
	}
	promoted := 0
	for _, p := range stale {
		status, err := s.gateway.HoldStatus(ctx, p.GatewayReference)
		if err != nil {
			zap.L().Warn("hold status lookup failed", zap.String("escrow_id", p.ID.String()), zap.Error(err))
			continue
		}
		if status != gateway.HoldAuthorized {
			continue
		}
		if _, err := s.confirmHeld(ctx, p.PackageID, p.ID, nil, false); err != nil {
			zap.L().Warn("hold reconciliation failed", zap.String("escrow_id", p.ID.String()), zap.Error(err))
			continue
		}
		promoted++
	}
	return promoted, nil
}

func (s *EscrowService) missingEscrow(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFoundf("no escrow payment exists for this package")
	}
	return storeError(err, "escrow payment")
}

func (s *EscrowService) notify(ctx context.Context, p *models.EscrowPayment) {
	if s.notifier == nil {
		return
	}
	var err error
	switch p.State {
	case domain.EscrowStateHeld:
		_, err = s.notifier.PaymentHeld(ctx, p)
	case domain.EscrowStateReleased:
		_, err = s.notifier.PaymentReleased(ctx, p)
	case domain.EscrowStateRefunded:
		_, err = s.notifier.PaymentRefunded(ctx, p)
	}
	if err != nil {
		zap.L().Warn("escrow notification failed", zap.String("escrow_id", p.ID.String()), zap.Error(err))
	}
}

func idempotencyKey(escrowID uuid.UUID, step string) string {
	return "escrow-" + escrowID.String() + "-" + step
}
