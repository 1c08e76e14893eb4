package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
)

// Store provides access to generated queries and transaction scoping.
type Store struct {
	db      *pgxpool.Pool
	queries *Queries
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

// RunInTx executes fn within a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := s.queries.GetProfile(ctx, ToPgUUID(id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) GetPackage(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	p, err := s.queries.GetPackage(ctx, ToPgUUID(id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	b, err := s.queries.GetBid(ctx, ToPgUUID(id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// CreateEscrowParams describes a new escrow payment in the created state.
type CreateEscrowParams struct {
	ID               uuid.UUID
	PackageID        uuid.UUID
	BidID            uuid.UUID
	MemberID         uuid.UUID
	ProviderID       uuid.UUID
	GrossCents       int64
	Currency         string
	GatewayReference string
	CreatedAt        time.Time
	ActorID          *uuid.UUID
}

// CreateEscrow inserts the payment and its audit row. A second active
// escrow for the same package violates a partial unique index and is
// reported as ErrDuplicate.
func (s *Store) CreateEscrow(ctx context.Context, arg CreateEscrowParams) (*models.EscrowPayment, error) {
	var created *models.EscrowPayment
	err := s.RunInTx(ctx, func(q *Queries) error {
		p, err := q.InsertEscrowPayment(ctx, InsertEscrowPaymentParams{
			ID:               ToPgUUID(arg.ID),
			PackageID:        ToPgUUID(arg.PackageID),
			BidID:            ToPgUUID(arg.BidID),
			MemberID:         ToPgUUID(arg.MemberID),
			ProviderID:       ToPgUUID(arg.ProviderID),
			GrossCents:       arg.GrossCents,
			Currency:         arg.Currency,
			GatewayReference: arg.GatewayReference,
			CreatedAt:        arg.CreatedAt,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert escrow payment: %w", err)
		}
		meta, _ := json.Marshal(map[string]any{
			"package_id":        arg.PackageID,
			"bid_id":            arg.BidID,
			"gross_cents":       arg.GrossCents,
			"gateway_reference": arg.GatewayReference,
		})
		if err := writeAudit(ctx, q, domain.AuditEntityEscrow, arg.ID, arg.ActorID, "created", domain.EscrowStateNone.String(), domain.EscrowStateCreated.String(), meta); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) ActiveEscrow(ctx context.Context, packageID uuid.UUID) (*models.EscrowPayment, error) {
	p, err := s.queries.GetActiveEscrowByPackage(ctx, ToPgUUID(packageID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) LatestEscrow(ctx context.Context, packageID uuid.UUID) (*models.EscrowPayment, error) {
	p, err := s.queries.GetLatestEscrowByPackage(ctx, ToPgUUID(packageID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) EscrowByReference(ctx context.Context, reference string) (*models.EscrowPayment, error) {
	p, err := s.queries.GetEscrowByGatewayReference(ctx, reference)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// EscrowTransition moves one escrow payment from an expected state to the next.
type EscrowTransition struct {
	EscrowID          uuid.UUID
	From              domain.EscrowState
	To                domain.EscrowState
	At                time.Time
	RefundReason      *string
	TransferReference *string
	ActorID           *uuid.UUID
	Action            string
}

// TransitionEscrow applies the conditional update and writes the audit row
// in one transaction. ErrStateConflict means another writer moved the
// payment first.
func (s *Store) TransitionEscrow(ctx context.Context, t EscrowTransition) (*models.EscrowPayment, error) {
	if !domain.CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("escrow transition %s -> %s: %w", t.From, t.To, ErrStateConflict)
	}
	var updated *models.EscrowPayment
	err := s.RunInTx(ctx, func(q *Queries) error {
		p, err := q.TransitionEscrowState(ctx, TransitionEscrowStateParams{
			ID:                ToPgUUID(t.EscrowID),
			FromState:         t.From.String(),
			ToState:           t.To.String(),
			At:                t.At,
			RefundReason:      t.RefundReason,
			TransferReference: t.TransferReference,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStateConflict
			}
			return fmt.Errorf("transition escrow payment: %w", err)
		}
		var meta []byte
		if t.RefundReason != nil || t.TransferReference != nil {
			meta, _ = json.Marshal(map[string]*string{
				"refund_reason":      t.RefundReason,
				"transfer_reference": t.TransferReference,
			})
		}
		action := t.Action
		if action == "" {
			action = t.To.String()
		}
		if err := writeAudit(ctx, q, domain.AuditEntityEscrow, t.EscrowID, t.ActorID, action, t.From.String(), t.To.String(), meta); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkEscrowCaptured records a successful capture while the payment stays held.
func (s *Store) MarkEscrowCaptured(ctx context.Context, escrowID uuid.UUID, at time.Time, actorID *uuid.UUID) error {
	return s.RunInTx(ctx, func(q *Queries) error {
		rows, err := q.MarkEscrowCaptured(ctx, ToPgUUID(escrowID), at)
		if err != nil {
			return fmt.Errorf("mark escrow captured: %w", err)
		}
		if rows != 1 {
			return ErrStateConflict
		}
		held := domain.EscrowStateHeld.String()
		return writeAudit(ctx, q, domain.AuditEntityEscrow, escrowID, actorID, "captured", held, held, nil)
	})
}

func (s *Store) ListStaleCreatedEscrows(ctx context.Context, before time.Time, limit int) ([]models.EscrowPayment, error) {
	return s.queries.ListStaleCreatedEscrows(ctx, before, int32(limit))
}

// CreateBidParams describes a provider's bid on an open package.
type CreateBidParams struct {
	ID         uuid.UUID
	PackageID  uuid.UUID
	ProviderID uuid.UUID
	PriceCents int64
	Note       string
	CreatedAt  time.Time
}

// CreateBid consumes one bid credit and stores the bid atomically.
func (s *Store) CreateBid(ctx context.Context, arg CreateBidParams) (*models.Bid, error) {
	err := s.RunInTx(ctx, func(q *Queries) error {
		rows, err := q.ConsumeBidCredit(ctx, ToPgUUID(arg.ProviderID))
		if err != nil {
			return fmt.Errorf("consume bid credit: %w", err)
		}
		if rows != 1 {
			return ErrInsufficientCredits
		}
		if err := q.InsertBid(ctx, InsertBidParams{
			ID:         ToPgUUID(arg.ID),
			PackageID:  ToPgUUID(arg.PackageID),
			ProviderID: ToPgUUID(arg.ProviderID),
			PriceCents: arg.PriceCents,
			Note:       arg.Note,
			CreatedAt:  arg.CreatedAt,
		}); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert bid: %w", err)
		}
		meta, _ := json.Marshal(map[string]any{"bid_id": arg.ID, "package_id": arg.PackageID})
		return writeAudit(ctx, q, domain.AuditEntityCredit, arg.ProviderID, &arg.ProviderID, "bid_credit_consumed", "", "", meta)
	})
	if err != nil {
		return nil, err
	}
	return &models.Bid{
		ID:         arg.ID,
		PackageID:  arg.PackageID,
		ProviderID: arg.ProviderID,
		PriceCents: arg.PriceCents,
		Note:       arg.Note,
		Status:     domain.BidStatusPending,
		CreatedAt:  arg.CreatedAt,
	}, nil
}

// AcceptBid marks the bid accepted, rejects its competitors and moves the
// package from open to accepted.
func (s *Store) AcceptBid(ctx context.Context, packageID, bidID uuid.UUID, at time.Time, actorID *uuid.UUID) error {
	return s.RunInTx(ctx, func(q *Queries) error {
		rows, err := q.SetAcceptedBid(ctx, ToPgUUID(packageID), ToPgUUID(bidID), at)
		if err != nil {
			return fmt.Errorf("set accepted bid: %w", err)
		}
		if rows != 1 {
			return ErrStateConflict
		}
		rows, err = q.AcceptPendingBid(ctx, ToPgUUID(bidID), ToPgUUID(packageID))
		if err != nil {
			return fmt.Errorf("accept bid: %w", err)
		}
		if rows != 1 {
			return ErrStateConflict
		}
		if _, err := q.RejectOtherBids(ctx, ToPgUUID(packageID), ToPgUUID(bidID)); err != nil {
			return fmt.Errorf("reject other bids: %w", err)
		}
		meta, _ := json.Marshal(map[string]any{"bid_id": bidID})
		return writeAudit(ctx, q, domain.AuditEntityPackage, packageID, actorID, "bid_accepted", domain.PackageStatusOpen, domain.PackageStatusAccepted, meta)
	})
}

// UpdatePackageStatus moves a package between statuses when it is still in from.
func (s *Store) UpdatePackageStatus(ctx context.Context, packageID uuid.UUID, from, to string, at time.Time, actorID *uuid.UUID) error {
	return s.RunInTx(ctx, func(q *Queries) error {
		rows, err := q.UpdatePackageStatus(ctx, UpdatePackageStatusParams{
			ID:         ToPgUUID(packageID),
			FromStatus: from,
			ToStatus:   to,
			UpdatedAt:  at,
		})
		if err != nil {
			return fmt.Errorf("update package status: %w", err)
		}
		if rows != 1 {
			return ErrStateConflict
		}
		return writeAudit(ctx, q, domain.AuditEntityPackage, packageID, actorID, "status_changed", from, to, nil)
	})
}

func (s *Store) CreateMessage(ctx context.Context, m models.Message) error {
	err := s.queries.InsertMessage(ctx, InsertMessageParams{
		ID:          ToPgUUID(m.ID),
		PackageID:   ToPgUUID(m.PackageID),
		SenderID:    ToPgUUID(m.SenderID),
		RecipientID: ToPgUUID(m.RecipientID),
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SetPayoutAccount stores the connected account id once per profile.
func (s *Store) SetPayoutAccount(ctx context.Context, profileID uuid.UUID, accountID string) error {
	rows, err := s.queries.SetPayoutAccount(ctx, ToPgUUID(profileID), accountID)
	if err != nil {
		return fmt.Errorf("set payout account: %w", err)
	}
	if rows != 1 {
		return ErrStateConflict
	}
	return nil
}

func (s *Store) InsertNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	created, err := s.queries.InsertNotification(ctx, InsertNotificationParams{
		ID:        ToPgUUID(n.ID),
		UserID:    ToPgUUID(n.UserID),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		LinkType:  n.LinkType,
		LinkID:    n.LinkID,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

// NotificationFilter selects one page of a user's notifications.
type NotificationFilter struct {
	UserID     uuid.UUID
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (s *Store) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	return s.queries.ListNotificationsByUser(ctx, ListNotificationsByUserParams{
		UserID:     ToPgUUID(f.UserID),
		UnreadOnly: f.UnreadOnly,
		Limit:      int32(f.Limit),
		Offset:     int32(f.Offset),
	})
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.queries.CountUnreadNotifications(ctx, ToPgUUID(userID))
}

// MarkNotificationRead returns ErrNotFound when the notification is not the user's.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error {
	rows, err := s.queries.MarkNotificationRead(ctx, ToPgUUID(id), ToPgUUID(userID))
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.queries.MarkAllNotificationsRead(ctx, ToPgUUID(userID))
}

// CreditGrant is one completed bid-pack purchase.
type CreditGrant struct {
	ProviderID  uuid.UUID
	PackID      string
	SessionID   string
	Credits     int64
	AmountCents int64
	At          time.Time
}

// GrantBidCredits records the purchase and adds the credits in one
// transaction. It returns false when the session was already granted.
func (s *Store) GrantBidCredits(ctx context.Context, g CreditGrant) (bool, error) {
	granted := false
	err := s.RunInTx(ctx, func(q *Queries) error {
		purchaseID := uuid.New()
		_, err := q.InsertCreditPurchase(ctx, InsertCreditPurchaseParams{
			ID:          ToPgUUID(purchaseID),
			ProviderID:  ToPgUUID(g.ProviderID),
			PackID:      g.PackID,
			SessionID:   g.SessionID,
			Credits:     g.Credits,
			AmountCents: g.AmountCents,
			CreatedAt:   g.At,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("insert credit purchase: %w", err)
		}
		rows, err := q.AddBidCredits(ctx, ToPgUUID(g.ProviderID), g.Credits)
		if err != nil {
			return fmt.Errorf("add bid credits: %w", err)
		}
		if rows != 1 {
			return ErrNotFound
		}
		meta, _ := json.Marshal(map[string]any{"session_id": g.SessionID, "pack_id": g.PackID, "credits": g.Credits})
		if err := writeAudit(ctx, q, domain.AuditEntityCredit, g.ProviderID, nil, "bid_credits_granted", "", "", meta); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *Store) WebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.queries.WebhookEventProcessed(ctx, eventID)
}

func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) error {
	if _, err := s.queries.InsertWebhookEvent(ctx, eventID, eventType, at); err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

func writeAudit(ctx context.Context, q *Queries, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata []byte) error {
	var actor pgtype.UUID
	if actorID != nil {
		actor = ToPgUUID(*actorID)
	}
	if _, err := q.InsertAuditLog(ctx, InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   ToPgUUID(entityID),
		ActorID:    actor,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
