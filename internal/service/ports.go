package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/repository"
)

// ProfileReader resolves marketplace records by id.
type ProfileReader interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error)
	GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
}

// EscrowStore is the data access contract of the escrow coordinator.
type EscrowStore interface {
	ProfileReader
	CreateEscrow(ctx context.Context, arg repository.CreateEscrowParams) (*models.EscrowPayment, error)
	ActiveEscrow(ctx context.Context, packageID uuid.UUID) (*models.EscrowPayment, error)
	LatestEscrow(ctx context.Context, packageID uuid.UUID) (*models.EscrowPayment, error)
	EscrowByReference(ctx context.Context, reference string) (*models.EscrowPayment, error)
	TransitionEscrow(ctx context.Context, t repository.EscrowTransition) (*models.EscrowPayment, error)
	MarkEscrowCaptured(ctx context.Context, escrowID uuid.UUID, at time.Time, actorID *uuid.UUID) error
	ListStaleCreatedEscrows(ctx context.Context, before time.Time, limit int) ([]models.EscrowPayment, error)
}

type MarketplaceStore interface {
	ProfileReader
	CreateBid(ctx context.Context, arg repository.CreateBidParams) (*models.Bid, error)
	AcceptBid(ctx context.Context, packageID, bidID uuid.UUID, at time.Time, actorID *uuid.UUID) error
	UpdatePackageStatus(ctx context.Context, packageID uuid.UUID, from, to string, at time.Time, actorID *uuid.UUID) error
	CreateMessage(ctx context.Context, m models.Message) error
}

type NotificationStore interface {
	ProfileReader
	InsertNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	ListNotifications(ctx context.Context, f repository.NotificationFilter) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CreditStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GrantBidCredits(ctx context.Context, g repository.CreditGrant) (bool, error)
}

type WebhookEventStore interface {
	WebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) error
}

type PayoutAccountStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	SetPayoutAccount(ctx context.Context, profileID uuid.UUID, accountID string) error
}

// Store is everything the services need. Both the Postgres store and the
// in-memory test store satisfy it.
type Store interface {
	EscrowStore
	MarketplaceStore
	NotificationStore
	CreditStore
	WebhookEventStore
	PayoutAccountStore
	Ping(ctx context.Context) error
}

var _ Store = (*repository.Store)(nil)
