package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// A conflicting session id yields pgx.ErrNoRows.
const insertCreditPurchase = `-- name: InsertCreditPurchase :one
INSERT INTO credit_purchases (id, provider_id, pack_id, session_id, credits, amount_cents, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO NOTHING
RETURNING id`

type InsertCreditPurchaseParams struct {
	ID          pgtype.UUID
	ProviderID  pgtype.UUID
	PackID      string
	SessionID   string
	Credits     int64
	AmountCents int64
	CreatedAt   time.Time
}

func (q *Queries) InsertCreditPurchase(ctx context.Context, arg InsertCreditPurchaseParams) (pgtype.UUID, error) {
	var id pgtype.UUID
	err := q.db.QueryRow(ctx, insertCreditPurchase,
		arg.ID, arg.ProviderID, arg.PackID, arg.SessionID, arg.Credits, arg.AmountCents, arg.CreatedAt,
	).Scan(&id)
	return id, err
}

const getCreditPurchaseBySession = `-- name: GetCreditPurchaseBySession :one
SELECT id, provider_id, credits FROM credit_purchases WHERE session_id = $1`

type GetCreditPurchaseBySessionRow struct {
	ID         pgtype.UUID
	ProviderID pgtype.UUID
	Credits    int64
}

func (q *Queries) GetCreditPurchaseBySession(ctx context.Context, sessionID string) (GetCreditPurchaseBySessionRow, error) {
	var i GetCreditPurchaseBySessionRow
	err := q.db.QueryRow(ctx, getCreditPurchaseBySession, sessionID).Scan(&i.ID, &i.ProviderID, &i.Credits)
	return i, err
}
