package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
)

const escrowColumns = `id, package_id, bid_id, member_id, provider_id, gross_cents, currency, state,
	gateway_reference, transfer_reference, refund_reason, created_at, held_at, captured_at,
	released_at, refunded_at`

func scanEscrow(row pgx.Row) (*models.EscrowPayment, error) {
	var (
		p                                      models.EscrowPayment
		id, packageID, bidID, member, provider pgtype.UUID
		state                                  string
	)
	err := row.Scan(
		&id, &packageID, &bidID, &member, &provider,
		&p.GrossCents, &p.Currency, &state,
		&p.GatewayReference, &p.TransferReference, &p.RefundReason,
		&p.CreatedAt, &p.HeldAt, &p.CapturedAt, &p.ReleasedAt, &p.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = FromPgUUID(id)
	p.PackageID = FromPgUUID(packageID)
	p.BidID = FromPgUUID(bidID)
	p.MemberID = FromPgUUID(member)
	p.ProviderID = FromPgUUID(provider)
	p.State = domain.EscrowState(state)
	return &p, nil
}

const insertEscrowPayment = `-- name: InsertEscrowPayment :one
INSERT INTO escrow_payments (
	id, package_id, bid_id, member_id, provider_id, gross_cents, currency, state, gateway_reference, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 'created', $8, $9)
RETURNING ` + escrowColumns

type InsertEscrowPaymentParams struct {
	ID               pgtype.UUID
	PackageID        pgtype.UUID
	BidID            pgtype.UUID
	MemberID         pgtype.UUID
	ProviderID       pgtype.UUID
	GrossCents       int64
	Currency         string
	GatewayReference string
	CreatedAt        time.Time
}

func (q *Queries) InsertEscrowPayment(ctx context.Context, arg InsertEscrowPaymentParams) (*models.EscrowPayment, error) {
	row := q.db.QueryRow(ctx, insertEscrowPayment,
		arg.ID, arg.PackageID, arg.BidID, arg.MemberID, arg.ProviderID,
		arg.GrossCents, arg.Currency, arg.GatewayReference, arg.CreatedAt,
	)
	return scanEscrow(row)
}

const getActiveEscrowByPackage = `-- name: GetActiveEscrowByPackage :one
SELECT ` + escrowColumns + `
FROM escrow_payments
WHERE package_id = $1 AND state IN ('created', 'held')`

func (q *Queries) GetActiveEscrowByPackage(ctx context.Context, packageID pgtype.UUID) (*models.EscrowPayment, error) {
	return scanEscrow(q.db.QueryRow(ctx, getActiveEscrowByPackage, packageID))
}

const getLatestEscrowByPackage = `-- name: GetLatestEscrowByPackage :one
SELECT ` + escrowColumns + `
FROM escrow_payments
WHERE package_id = $1
ORDER BY created_at DESC
LIMIT 1`

func (q *Queries) GetLatestEscrowByPackage(ctx context.Context, packageID pgtype.UUID) (*models.EscrowPayment, error) {
	return scanEscrow(q.db.QueryRow(ctx, getLatestEscrowByPackage, packageID))
}

const getEscrowByGatewayReference = `-- name: GetEscrowByGatewayReference :one
SELECT ` + escrowColumns + `
FROM escrow_payments
WHERE gateway_reference = $1`

func (q *Queries) GetEscrowByGatewayReference(ctx context.Context, reference string) (*models.EscrowPayment, error) {
	return scanEscrow(q.db.QueryRow(ctx, getEscrowByGatewayReference, reference))
}

// Timestamps use COALESCE so each one is written at most once.
const transitionEscrowState = `-- name: TransitionEscrowState :one
UPDATE escrow_payments
SET state = $3::text,
	held_at = CASE WHEN $3::text = 'held' THEN COALESCE(held_at, $4::timestamptz) ELSE held_at END,
	released_at = CASE WHEN $3::text = 'released' THEN COALESCE(released_at, $4::timestamptz) ELSE released_at END,
	refunded_at = CASE WHEN $3::text = 'refunded' THEN COALESCE(refunded_at, $4::timestamptz) ELSE refunded_at END,
	refund_reason = COALESCE($5::text, refund_reason),
	transfer_reference = COALESCE($6::text, transfer_reference)
WHERE id = $1 AND state = $2::text
RETURNING ` + escrowColumns

type TransitionEscrowStateParams struct {
	ID                pgtype.UUID
	FromState         string
	ToState           string
	At                time.Time
	RefundReason      *string
	TransferReference *string
}

func (q *Queries) TransitionEscrowState(ctx context.Context, arg TransitionEscrowStateParams) (*models.EscrowPayment, error) {
	row := q.db.QueryRow(ctx, transitionEscrowState,
		arg.ID, arg.FromState, arg.ToState, arg.At, arg.RefundReason, arg.TransferReference,
	)
	return scanEscrow(row)
}

const markEscrowCaptured = `-- name: MarkEscrowCaptured :execrows
UPDATE escrow_payments
SET captured_at = $2
WHERE id = $1 AND state = 'held' AND captured_at IS NULL`

func (q *Queries) MarkEscrowCaptured(ctx context.Context, id pgtype.UUID, at time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, markEscrowCaptured, id, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listStaleCreatedEscrows = `-- name: ListStaleCreatedEscrows :many
SELECT ` + escrowColumns + `
FROM escrow_payments
WHERE state = 'created' AND created_at < $1
ORDER BY created_at
LIMIT $2`

func (q *Queries) ListStaleCreatedEscrows(ctx context.Context, before time.Time, limit int32) ([]models.EscrowPayment, error) {
	rows, err := q.db.Query(ctx, listStaleCreatedEscrows, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.EscrowPayment
	for rows.Next() {
		p, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
