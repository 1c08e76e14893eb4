package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertAuditLog,
		arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata,
	).Scan(&id)
	return id, err
}

const countAuditLog = `-- name: CountAuditLog :one
SELECT COUNT(*) FROM audit_log WHERE entity_type = $1 AND entity_id = $2`

func (q *Queries) CountAuditLog(ctx context.Context, entityType string, entityID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAuditLog, entityType, entityID).Scan(&count)
	return count, err
}
