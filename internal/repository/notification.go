package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"rehabit-server/internal/model"
)

// NotificationRepository handles notification persistence. Rows are
// append-only apart from the read flag.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository instance.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

const notificationColumns = `id, user_id, type, title, message, battle_id, from_user_id, read, created_at`

// Create creates a new notification record.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO notifications (id, user_id, type, title, message, battle_id, from_user_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
		RETURNING ` + notificationColumns

	var (
		created  model.Notification
		battleID *string
		fromID   *string
	)
	err := r.pool.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		nullableString(n.BattleID),
		nullableString(n.FromUserID),
	).Scan(
		&created.ID,
		&created.UserID,
		&created.Type,
		&created.Title,
		&created.Message,
		&battleID,
		&fromID,
		&created.Read,
		&created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	if battleID != nil {
		created.BattleID = *battleID
	}
	if fromID != nil {
		created.FromUserID = *fromID
	}

	return &created, nil
}

// ListByUser retrieves notifications for a user, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	const query = `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		var (
			n        model.Notification
			battleID *string
			fromID   *string
		)
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&battleID,
			&fromID,
			&n.Read,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if battleID != nil {
			n.BattleID = *battleID
		}
		if fromID != nil {
			n.FromUserID = *fromID
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead flags one notification as read. The owner check is part of
// the statement so users cannot touch each other's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
