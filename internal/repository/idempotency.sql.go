package repository

import (
	"context"
	"time"
)

const idempotencyColumns = `idempotency_key, request_hash, method, path, response_status, response_body,
	content_type, in_progress, created_at`

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
}

func scanIdempotencyKey(row interface{ Scan(...any) error }) (IdempotencyKey, error) {
	var i IdempotencyKey
	err := row.Scan(
		&i.IdempotencyKey, &i.RequestHash, &i.Method, &i.Path, &i.ResponseStatus,
		&i.ResponseBody, &i.ContentType, &i.InProgress, &i.CreatedAt,
	)
	return i, err
}

const getIdempotencyKey = `-- name: GetIdempotencyKey :one
SELECT ` + idempotencyColumns + `
FROM idempotency_keys
WHERE idempotency_key = $1`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, getIdempotencyKey, key))
}

const reserveIdempotencyKey = `-- name: ReserveIdempotencyKey :one
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress)
VALUES ($1, $2, $3, $4, 0, '', '', TRUE)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + idempotencyColumns

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, reserveIdempotencyKey,
		arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path,
	))
}

const finalizeIdempotencyKey = `-- name: FinalizeIdempotencyKey :one
UPDATE idempotency_keys
SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING ` + idempotencyColumns

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, finalizeIdempotencyKey,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash,
	))
}

// Releases a reservation whose handler failed so the client can retry.
const releaseIdempotencyKey = `-- name: ReleaseIdempotencyKey :execrows
DELETE FROM idempotency_keys
WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress = TRUE`

func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) (int64, error) {
	result, err := q.db.Exec(ctx, releaseIdempotencyKey, key, requestHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
