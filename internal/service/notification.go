package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/observability"
	"github.com/mycarconcierge/marketplace/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultNotificationPage = 20
	maxNotificationPage     = 100
)

// NotificationService creates in-app notifications for marketplace and
// payment events and serves the read side.
type NotificationService struct {
	store    NotificationStore
	currency string
	now      func() time.Time
}

func NewNotificationService(store NotificationStore, currency string) *NotificationService {
	return &NotificationService{store: store, currency: domain.NormalizeCurrency(currency), now: time.Now}
}

// NotifyRequest is one notification to insert.
type NotifyRequest struct {
	UserID   uuid.UUID
	Type     domain.NotificationType
	Title    string
	Message  string
	LinkType string
	LinkID   string
}

// Notify inserts a single unread notification.
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) (*models.Notification, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.Validationf("userId is required")
	}
	if !req.Type.Valid() {
		return nil, domain.Validationf("unknown notification type: %s", req.Type)
	}
	title := strings.TrimSpace(req.Title)
	message := strings.TrimSpace(req.Message)
	if title == "" || message == "" {
		return nil, domain.Validationf("title and message are required")
	}
	n := models.Notification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if req.LinkType != "" && req.LinkID != "" {
		linkType, linkID := req.LinkType, req.LinkID
		n.LinkType = &linkType
		n.LinkID = &linkID
	}
	created, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		observability.IncrementNotification(string(req.Type), "error")
		return nil, err
	}
	observability.IncrementNotification(string(req.Type), "sent")
	return created, nil
}

// skip records a trigger whose display data could not be resolved.
func (s *NotificationService) skip(kind domain.NotificationType, err error, fields ...zap.Field) (*models.Notification, error) {
	if errors.Is(err, repository.ErrNotFound) {
		observability.IncrementNotification(string(kind), "skipped")
		zap.L().Debug("notification skipped", append(fields, zap.String("type", string(kind)), zap.Error(err))...)
		return nil, nil
	}
	return nil, fmt.Errorf("resolve %s notification: %w", kind, err)
}

// BidReceived tells the package owner about a new bid.
func (s *NotificationService) BidReceived(ctx context.Context, bidID uuid.UUID) (*models.Notification, error) {
	kind := domain.NotificationBidReceived
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return s.skip(kind, err, zap.String("bid_id", bidID.String()))
	}
	pkg, err := s.store.GetPackage(ctx, bid.PackageID)
	if err != nil {
		return s.skip(kind, err, zap.String("package_id", bid.PackageID.String()))
	}
	provider, err := s.store.GetProfile(ctx, bid.ProviderID)
	if err != nil {
		return s.skip(kind, err, zap.String("provider_id", bid.ProviderID.String()))
	}
	return s.Notify(ctx, NotifyRequest{
		UserID:   pkg.MemberID,
		Type:     kind,
		Title:    "New bid received",
		Message:  fmt.Sprintf("%s bid %s on %s", displayName(provider), domain.NewMoney(bid.PriceCents, s.currency), describePackage(pkg)),
		LinkType: domain.LinkTypePackage,
		LinkID:   pkg.ID.String(),
	})
}

// BidAccepted tells the provider their bid won.
func (s *NotificationService) BidAccepted(ctx context.Context, bidID uuid.UUID) (*models.Notification, error) {
	kind := domain.NotificationBidAccepted
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return s.skip(kind, err, zap.String("bid_id", bidID.String()))
	}
	pkg, err := s.store.GetPackage(ctx, bid.PackageID)
	if err != nil {
		return s.skip(kind, err, zap.String("package_id", bid.PackageID.String()))
	}
	member, err := s.store.GetProfile(ctx, pkg.MemberID)
	if err != nil {
		return s.skip(kind, err, zap.String("member_id", pkg.MemberID.String()))
	}
	return s.Notify(ctx, NotifyRequest{
		UserID:   bid.ProviderID,
		Type:     kind,
		Title:    "Your bid was accepted",
		Message:  fmt.Sprintf("%s accepted your bid on %s", displayName(member), describePackage(pkg)),
		LinkType: domain.LinkTypeBid,
		LinkID:   bid.ID.String(),
	})
}

// WorkStarted tells the package owner the provider began work.
func (s *NotificationService) WorkStarted(ctx context.Context, packageID uuid.UUID) (*models.Notification, error) {
	return s.workUpdate(ctx, packageID, domain.NotificationWorkStarted, "Work started", "%s started work on %s")
}

// WorkCompleted tells the package owner the provider finished.
func (s *NotificationService) WorkCompleted(ctx context.Context, packageID uuid.UUID) (*models.Notification, error) {
	return s.workUpdate(ctx, packageID, domain.NotificationWorkCompleted, "Work completed", "%s completed work on %s")
}

func (s *NotificationService) workUpdate(ctx context.Context, packageID uuid.UUID, kind domain.NotificationType, title, format string) (*models.Notification, error) {
	pkg, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return s.skip(kind, err, zap.String("package_id", packageID.String()))
	}
	if pkg.AcceptedBidID == nil {
		return s.skip(kind, repository.ErrNotFound, zap.String("package_id", packageID.String()))
	}
	bid, err := s.store.GetBid(ctx, *pkg.AcceptedBidID)
	if err != nil {
		return s.skip(kind, err, zap.String("bid_id", pkg.AcceptedBidID.String()))
	}
	provider, err := s.store.GetProfile(ctx, bid.ProviderID)
	if err != nil {
		return s.skip(kind, err, zap.String("provider_id", bid.ProviderID.String()))
	}
	return s.Notify(ctx, NotifyRequest{
		UserID:   pkg.MemberID,
		Type:     kind,
		Title:    title,
		Message:  fmt.Sprintf(format, displayName(provider), describePackage(pkg)),
		LinkType: domain.LinkTypePackage,
		LinkID:   pkg.ID.String(),
	})
}

// NewMessage tells the recipient about a direct message.
func (s *NotificationService) NewMessage(ctx context.Context, msg models.Message) (*models.Notification, error) {
	kind := domain.NotificationNewMessage
	pkg, err := s.store.GetPackage(ctx, msg.PackageID)
	if err != nil {
		return s.skip(kind, err, zap.String("package_id", msg.PackageID.String()))
	}
	sender, err := s.store.GetProfile(ctx, msg.SenderID)
	if err != nil {
		return s.skip(kind, err, zap.String("sender_id", msg.SenderID.String()))
	}
	return s.Notify(ctx, NotifyRequest{
		UserID:   msg.RecipientID,
		Type:     kind,
		Title:    "New message",
		Message:  fmt.Sprintf("%s sent you a message about %s", displayName(sender), describePackage(pkg)),
		LinkType: domain.LinkTypeMessage,
		LinkID:   msg.ID.String(),
	})
}

// PaymentHeld tells the provider the member's funds are secured.
func (s *NotificationService) PaymentHeld(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error) {
	return s.paymentUpdate(ctx, p, domain.NotificationPaymentHeld, "Payment secured",
		"%s is held in escrow for %s")
}

// PaymentReleased tells the provider the payout is on its way.
func (s *NotificationService) PaymentReleased(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error) {
	return s.paymentUpdate(ctx, p, domain.NotificationPaymentReleased, "Payment released",
		"%s was released to you for %s")
}

// PaymentRefunded tells the provider the hold was returned to the member.
func (s *NotificationService) PaymentRefunded(ctx context.Context, p *models.EscrowPayment) (*models.Notification, error) {
	return s.paymentUpdate(ctx, p, domain.NotificationPaymentRefunded, "Payment refunded",
		"%s was refunded to the member for %s")
}

func (s *NotificationService) paymentUpdate(ctx context.Context, p *models.EscrowPayment, kind domain.NotificationType, title, format string) (*models.Notification, error) {
	pkg, err := s.store.GetPackage(ctx, p.PackageID)
	if err != nil {
		return s.skip(kind, err, zap.String("package_id", p.PackageID.String()))
	}
	return s.Notify(ctx, NotifyRequest{
		UserID:   p.ProviderID,
		Type:     kind,
		Title:    title,
		Message:  fmt.Sprintf(format, domain.NewMoney(p.GrossCents, p.Currency), describePackage(pkg)),
		LinkType: domain.LinkTypeEscrow,
		LinkID:   pkg.ID.String(),
	})
}

// ListOptions pages a user's notifications.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Notification, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultNotificationPage
	}
	if opts.Limit > maxNotificationPage {
		return nil, domain.Validationf("limit must be at most %d", maxNotificationPage)
	}
	if opts.Offset < 0 {
		return nil, domain.Validationf("offset must not be negative")
	}
	return s.store.ListNotifications(ctx, repository.NotificationFilter{
		UserID:     userID,
		UnreadOnly: opts.UnreadOnly,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return storeError(s.store.MarkNotificationRead(ctx, notificationID, userID), "notification")
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func displayName(p *models.Profile) string {
	if name := strings.TrimSpace(p.BusinessName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return "Someone"
}

func describePackage(p *models.Package) string {
	if v := strings.TrimSpace(p.VehicleDescription); v != "" {
		return fmt.Sprintf("%s (%s)", p.Title, v)
	}
	return p.Title
}
