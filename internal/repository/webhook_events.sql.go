package repository

import (
	"context"
	"time"
)

const webhookEventProcessed = `-- name: WebhookEventProcessed :one
SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`

func (q *Queries) WebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, webhookEventProcessed, eventID).Scan(&exists)
	return exists, err
}

const insertWebhookEvent = `-- name: InsertWebhookEvent :execrows
INSERT INTO webhook_events (event_id, event_type, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO NOTHING`

func (q *Queries) InsertWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, insertWebhookEvent, eventID, eventType, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
