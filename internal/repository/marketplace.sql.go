package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mycarconcierge/marketplace/internal/models"
)

const getProfile = `-- name: GetProfile :one
SELECT id, display_name, email, business_name, role, payout_account_id, bid_credits, created_at
FROM profiles
WHERE id = $1`

func (q *Queries) GetProfile(ctx context.Context, id pgtype.UUID) (*models.Profile, error) {
	var (
		p   models.Profile
		pid pgtype.UUID
	)
	err := q.db.QueryRow(ctx, getProfile, id).Scan(
		&pid, &p.DisplayName, &p.Email, &p.BusinessName, &p.Role, &p.PayoutAccountID, &p.BidCredits, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = FromPgUUID(pid)
	return &p, nil
}

const setPayoutAccount = `-- name: SetPayoutAccount :execrows
UPDATE profiles
SET payout_account_id = $2
WHERE id = $1 AND payout_account_id IS NULL`

func (q *Queries) SetPayoutAccount(ctx context.Context, id pgtype.UUID, accountID string) (int64, error) {
	result, err := q.db.Exec(ctx, setPayoutAccount, id, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const consumeBidCredit = `-- name: ConsumeBidCredit :execrows
UPDATE profiles
SET bid_credits = bid_credits - 1
WHERE id = $1 AND bid_credits > 0`

func (q *Queries) ConsumeBidCredit(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, consumeBidCredit, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const addBidCredits = `-- name: AddBidCredits :execrows
UPDATE profiles
SET bid_credits = bid_credits + $2
WHERE id = $1`

func (q *Queries) AddBidCredits(ctx context.Context, id pgtype.UUID, credits int64) (int64, error) {
	result, err := q.db.Exec(ctx, addBidCredits, id, credits)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const packageColumns = `id, member_id, title, vehicle_description, status, accepted_bid_id, created_at, updated_at`

func (q *Queries) scanPackage(ctx context.Context, query string, id pgtype.UUID) (*models.Package, error) {
	var (
		p                     models.Package
		pid, member, accepted pgtype.UUID
	)
	err := q.db.QueryRow(ctx, query, id).Scan(
		&pid, &member, &p.Title, &p.VehicleDescription, &p.Status, &accepted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = FromPgUUID(pid)
	p.MemberID = FromPgUUID(member)
	p.AcceptedBidID = uuidPtr(accepted)
	return &p, nil
}

const getPackage = `-- name: GetPackage :one
SELECT ` + packageColumns + `
FROM packages
WHERE id = $1`

func (q *Queries) GetPackage(ctx context.Context, id pgtype.UUID) (*models.Package, error) {
	return q.scanPackage(ctx, getPackage, id)
}

const getPackageForUpdate = `-- name: GetPackageForUpdate :one
SELECT ` + packageColumns + `
FROM packages
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetPackageForUpdate(ctx context.Context, id pgtype.UUID) (*models.Package, error) {
	return q.scanPackage(ctx, getPackageForUpdate, id)
}

const updatePackageStatus = `-- name: UpdatePackageStatus :execrows
UPDATE packages
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`

type UpdatePackageStatusParams struct {
	ID         pgtype.UUID
	FromStatus string
	ToStatus   string
	UpdatedAt  time.Time
}

func (q *Queries) UpdatePackageStatus(ctx context.Context, arg UpdatePackageStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updatePackageStatus, arg.ID, arg.FromStatus, arg.ToStatus, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const setAcceptedBid = `-- name: SetAcceptedBid :execrows
UPDATE packages
SET status = 'accepted', accepted_bid_id = $2, updated_at = $3
WHERE id = $1 AND status = 'open' AND accepted_bid_id IS NULL`

func (q *Queries) SetAcceptedBid(ctx context.Context, packageID, bidID pgtype.UUID, at time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, setAcceptedBid, packageID, bidID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const bidColumns = `id, package_id, provider_id, price_cents, note, status, created_at`

const getBid = `-- name: GetBid :one
SELECT ` + bidColumns + `
FROM bids
WHERE id = $1`

func (q *Queries) GetBid(ctx context.Context, id pgtype.UUID) (*models.Bid, error) {
	var (
		b                        models.Bid
		bid, packageID, provider pgtype.UUID
	)
	err := q.db.QueryRow(ctx, getBid, id).Scan(
		&bid, &packageID, &provider, &b.PriceCents, &b.Note, &b.Status, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ID = FromPgUUID(bid)
	b.PackageID = FromPgUUID(packageID)
	b.ProviderID = FromPgUUID(provider)
	return &b, nil
}

const insertBid = `-- name: InsertBid :exec
INSERT INTO bids (id, package_id, provider_id, price_cents, note, status, created_at)
VALUES ($1, $2, $3, $4, $5, 'pending', $6)`

type InsertBidParams struct {
	ID         pgtype.UUID
	PackageID  pgtype.UUID
	ProviderID pgtype.UUID
	PriceCents int64
	Note       string
	CreatedAt  time.Time
}

func (q *Queries) InsertBid(ctx context.Context, arg InsertBidParams) error {
	_, err := q.db.Exec(ctx, insertBid, arg.ID, arg.PackageID, arg.ProviderID, arg.PriceCents, arg.Note, arg.CreatedAt)
	return err
}

const acceptPendingBid = `-- name: AcceptPendingBid :execrows
UPDATE bids
SET status = 'accepted'
WHERE id = $1 AND package_id = $2 AND status = 'pending'`

func (q *Queries) AcceptPendingBid(ctx context.Context, bidID, packageID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, acceptPendingBid, bidID, packageID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const rejectOtherBids = `-- name: RejectOtherBids :execrows
UPDATE bids
SET status = 'rejected'
WHERE package_id = $1 AND id <> $2 AND status = 'pending'`

func (q *Queries) RejectOtherBids(ctx context.Context, packageID, acceptedBidID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, rejectOtherBids, packageID, acceptedBidID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertMessage = `-- name: InsertMessage :exec
INSERT INTO messages (id, package_id, sender_id, recipient_id, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertMessageParams struct {
	ID          pgtype.UUID
	PackageID   pgtype.UUID
	SenderID    pgtype.UUID
	RecipientID pgtype.UUID
	Body        string
	CreatedAt   time.Time
}

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.Exec(ctx, insertMessage, arg.ID, arg.PackageID, arg.SenderID, arg.RecipientID, arg.Body, arg.CreatedAt)
	return err
}
