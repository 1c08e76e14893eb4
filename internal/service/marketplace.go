package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/repository"
	"go.uber.org/zap"
)

const (
	maxBidNoteLength     = 2000
	maxMessageBodyLength = 4000
)

// MarketplaceService runs the bid and job lifecycle of packages and fires
// the matching notifications.
type MarketplaceService struct {
	store         MarketplaceStore
	notifications *NotificationService
	now           func() time.Time
}

func NewMarketplaceService(store MarketplaceStore, notifications *NotificationService) *MarketplaceService {
	return &MarketplaceService{store: store, notifications: notifications, now: time.Now}
}

// SubmitBidRequest is a provider's offer on an open package.
type SubmitBidRequest struct {
	PackageID  uuid.UUID
	PriceCents int64
	Note       string
}

// SubmitBid stores a bid and spends one of the provider's bid credits.
func (s *MarketplaceService) SubmitBid(ctx context.Context, actor Actor, req SubmitBidRequest) (*models.Bid, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.Forbiddenf("only providers can bid")
	}
	if req.PriceCents <= 0 {
		return nil, domain.Validationf("priceCents must be positive")
	}
	note := strings.TrimSpace(req.Note)
	if len(note) > maxBidNoteLength {
		return nil, domain.Validationf("note must be at most %d characters", maxBidNoteLength)
	}
	pkg, err := s.store.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, storeError(err, "package")
	}
	if pkg.MemberID == actor.UserID {
		return nil, domain.Forbiddenf("you cannot bid on your own package")
	}
	if pkg.Status != domain.PackageStatusOpen {
		return nil, domain.InvalidStatef("package is not accepting bids (status %s)", pkg.Status)
	}

	bid, err := s.store.CreateBid(ctx, repository.CreateBidParams{
		ID:         uuid.New(),
		PackageID:  pkg.ID,
		ProviderID: actor.UserID,
		PriceCents: req.PriceCents,
		Note:       note,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.InvalidStatef("you have already bid on this package")
		}
		return nil, storeError(err, "bid")
	}
	s.fire(s.notifications.BidReceived(ctx, bid.ID))
	return bid, nil
}

// AcceptBid lets the package owner pick the winning bid.
func (s *MarketplaceService) AcceptBid(ctx context.Context, actor Actor, bidID uuid.UUID) (*models.Bid, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, storeError(err, "bid")
	}
	pkg, err := s.store.GetPackage(ctx, bid.PackageID)
	if err != nil {
		return nil, storeError(err, "package")
	}
	if !actor.Is(pkg.MemberID) {
		return nil, domain.Forbiddenf("only the package owner can accept bids")
	}
	if bid.Status != domain.BidStatusPending || pkg.Status != domain.PackageStatusOpen {
		return nil, domain.InvalidStatef("bid can no longer be accepted")
	}
	if err := s.store.AcceptBid(ctx, pkg.ID, bid.ID, s.now().UTC(), actor.ID()); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, domain.InvalidStatef("bid can no longer be accepted")
		}
		return nil, storeError(err, "bid")
	}
	bid.Status = domain.BidStatusAccepted
	s.fire(s.notifications.BidAccepted(ctx, bid.ID))
	return bid, nil
}

// StartWork moves an accepted package to in progress.
func (s *MarketplaceService) StartWork(ctx context.Context, actor Actor, packageID uuid.UUID) (*models.Package, error) {
	pkg, err := s.advance(ctx, actor, packageID, domain.PackageStatusAccepted, domain.PackageStatusInProgress)
	if err != nil {
		return nil, err
	}
	s.fire(s.notifications.WorkStarted(ctx, pkg.ID))
	return pkg, nil
}

// CompleteWork marks an in-progress package as done.
func (s *MarketplaceService) CompleteWork(ctx context.Context, actor Actor, packageID uuid.UUID) (*models.Package, error) {
	pkg, err := s.advance(ctx, actor, packageID, domain.PackageStatusInProgress, domain.PackageStatusCompleted)
	if err != nil {
		return nil, err
	}
	s.fire(s.notifications.WorkCompleted(ctx, pkg.ID))
	return pkg, nil
}

// advance is only open to the provider of the accepted bid.
func (s *MarketplaceService) advance(ctx context.Context, actor Actor, packageID uuid.UUID, from, to string) (*models.Package, error) {
	pkg, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, storeError(err, "package")
	}
	if pkg.AcceptedBidID == nil {
		return nil, domain.InvalidStatef("package has no accepted bid")
	}
	bid, err := s.store.GetBid(ctx, *pkg.AcceptedBidID)
	if err != nil {
		return nil, storeError(err, "bid")
	}
	if !actor.Is(bid.ProviderID) {
		return nil, domain.Forbiddenf("only the assigned provider can update this job")
	}
	if pkg.Status != from {
		return nil, domain.InvalidStatef("package must be %s, current status: %s", from, pkg.Status)
	}
	now := s.now().UTC()
	if err := s.store.UpdatePackageStatus(ctx, pkg.ID, from, to, now, actor.ID()); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, domain.InvalidStatef("package status changed concurrently")
		}
		return nil, storeError(err, "package")
	}
	pkg.Status = to
	pkg.UpdatedAt = now
	return pkg, nil
}

// SendMessageRequest is a direct message about a package.
type SendMessageRequest struct {
	PackageID   uuid.UUID
	RecipientID uuid.UUID
	Body        string
}

// SendMessage stores a message between the package owner and a provider.
func (s *MarketplaceService) SendMessage(ctx context.Context, actor Actor, req SendMessageRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, domain.Validationf("message body is required")
	}
	if len(body) > maxMessageBodyLength {
		return nil, domain.Validationf("message body must be at most %d characters", maxMessageBodyLength)
	}
	if actor.UserID == uuid.Nil || req.RecipientID == uuid.Nil || req.RecipientID == actor.UserID {
		return nil, domain.Validationf("recipientId must be another user")
	}
	pkg, err := s.store.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, storeError(err, "package")
	}
	if pkg.MemberID != actor.UserID && pkg.MemberID != req.RecipientID {
		return nil, domain.Forbiddenf("messages must involve the package owner")
	}
	if _, err := s.store.GetProfile(ctx, req.RecipientID); err != nil {
		return nil, storeError(err, "recipient")
	}

	msg := models.Message{
		ID:          uuid.New(),
		PackageID:   pkg.ID,
		SenderID:    actor.UserID,
		RecipientID: req.RecipientID,
		Body:        body,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, storeError(err, "message")
	}
	s.fire(s.notifications.NewMessage(ctx, msg))
	return &msg, nil
}

// fire logs trigger failures; notifications never fail the operation.
func (s *MarketplaceService) fire(_ *models.Notification, err error) {
	if err != nil {
		zap.L().Warn("notification trigger failed", zap.Error(err))
	}
}
