package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, link_type, link_id, read, created_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var (
		n        models.Notification
		id, user pgtype.UUID
		kind     string
	)
	if err := row.Scan(&id, &user, &kind, &n.Title, &n.Message, &n.LinkType, &n.LinkID, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.ID = FromPgUUID(id)
	n.UserID = FromPgUUID(user)
	n.Type = domain.NotificationType(kind)
	return &n, nil
}

const insertNotification = `-- name: InsertNotification :one
INSERT INTO notifications (id, user_id, type, title, message, link_type, link_id, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
RETURNING ` + notificationColumns

type InsertNotificationParams struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	Type      string
	Title     string
	Message   string
	LinkType  *string
	LinkID    *string
	CreatedAt time.Time
}

func (q *Queries) InsertNotification(ctx context.Context, arg InsertNotificationParams) (*models.Notification, error) {
	row := q.db.QueryRow(ctx, insertNotification,
		arg.ID, arg.UserID, arg.Type, arg.Title, arg.Message, arg.LinkType, arg.LinkID, arg.CreatedAt,
	)
	return scanNotification(row)
}

const listNotificationsByUser = `-- name: ListNotificationsByUser :many
SELECT ` + notificationColumns + `
FROM notifications
WHERE user_id = $1 AND ($2::bool = FALSE OR read = FALSE)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`

type ListNotificationsByUserParams struct {
	UserID     pgtype.UUID
	UnreadOnly bool
	Limit      int32
	Offset     int32
}

func (q *Queries) ListNotificationsByUser(ctx context.Context, arg ListNotificationsByUserParams) ([]models.Notification, error) {
	rows, err := q.db.Query(ctx, listNotificationsByUser, arg.UserID, arg.UnreadOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countUnreadNotifications = `-- name: CountUnreadNotifications :one
SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`

func (q *Queries) CountUnreadNotifications(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUnreadNotifications, userID).Scan(&count)
	return count, err
}

const markNotificationRead = `-- name: MarkNotificationRead :execrows
UPDATE notifications
SET read = TRUE
WHERE id = $1 AND user_id = $2`

func (q *Queries) MarkNotificationRead(ctx context.Context, id, userID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, markNotificationRead, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markAllNotificationsRead = `-- name: MarkAllNotificationsRead :execrows
UPDATE notifications
SET read = TRUE
WHERE user_id = $1 AND read = FALSE`

func (q *Queries) MarkAllNotificationsRead(ctx context.Context, userID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, markAllNotificationsRead, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
