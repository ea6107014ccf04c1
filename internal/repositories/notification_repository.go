package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"social-service/internal/models"
)

// NotificationRepository persists user notifications.
type NotificationRepository interface {
	CoalesceOrCreate(ctx context.Context, userID int, ntype, title, message, coalescedMessage string, window time.Duration) (models.Notification, bool, error)
	Get(ctx context.Context, id int) (models.Notification, error)
	ListForUser(ctx context.Context, userID int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const notificationColumns = `id, user_id, type, title, message, count, read, created_at, updated_at`

// CoalesceOrCreate either bumps the most recent same-type notification
// created within the trailing window or inserts a fresh row with count 1.
// An advisory lock on the (user, type, title) key serializes concurrent
// bursts: a FOR UPDATE row lock alone cannot stop two transactions that
// both see zero rows from double-inserting. Returns the resulting row and
// whether it was newly created.
func (r *NotificationRepo) CoalesceOrCreate(ctx context.Context, userID int, ntype, title, message, coalescedMessage string, window time.Duration) (models.Notification, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Notification{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		fmt.Sprintf("%d:%s:%s", userID, ntype, title)); err != nil {
		return models.Notification{}, false, err
	}

	var existing models.Notification
	err = tx.QueryRowxContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
         WHERE user_id=$1 AND type=$2 AND title=$3 AND created_at > NOW() - make_interval(secs => $4)
         ORDER BY created_at DESC LIMIT 1
         FOR UPDATE`,
		userID, ntype, title, window.Seconds()).
		Scan(&existing.ID, &existing.UserID, &existing.Type, &existing.Title, &existing.Message,
			&existing.Count, &existing.Read, &existing.CreatedAt, &existing.UpdatedAt)

	if err == nil {
		var updated models.Notification
		if err = tx.QueryRowxContext(ctx,
			`UPDATE notifications SET count=count+1, message=$1, read=FALSE, updated_at=NOW()
             WHERE id=$2 RETURNING `+notificationColumns,
			coalescedMessage, existing.ID).
			Scan(&updated.ID, &updated.UserID, &updated.Type, &updated.Title, &updated.Message,
				&updated.Count, &updated.Read, &updated.CreatedAt, &updated.UpdatedAt); err != nil {
			return models.Notification{}, false, err
		}
		if err = tx.Commit(); err != nil {
			return models.Notification{}, false, err
		}
		return updated, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, false, err
	}

	var created models.Notification
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message) VALUES ($1, $2, $3, $4)
         RETURNING `+notificationColumns,
		userID, ntype, title, message).
		Scan(&created.ID, &created.UserID, &created.Type, &created.Title, &created.Message,
			&created.Count, &created.Read, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return models.Notification{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return models.Notification{}, false, err
	}
	return created, true, nil
}

// Get fetches one notification.
func (r *NotificationRepo) Get(ctx context.Context, id int) (models.Notification, error) {
	var notification models.Notification
	err := r.db.GetContext(ctx, &notification,
		`SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return notification, err
}

// ListForUser returns the user's notifications, most recently updated first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int) ([]models.Notification, error) {
	var rows []models.Notification
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id=$1 ORDER BY updated_at DESC`, userID)
	return rows, err
}

// MarkRead flags the notification as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read=TRUE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Delete removes the notification.
func (r *NotificationRepo) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
