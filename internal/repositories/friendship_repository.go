package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"social-service/internal/models"
)

// FriendshipRepository abstracts the social-graph persistence.
type FriendshipRepository interface {
	CreateRequest(ctx context.Context, senderID, receiverID int) (models.Friendship, error)
	Get(ctx context.Context, id int) (models.Friendship, error)
	FindActiveBetween(ctx context.Context, userA, userB int) (models.Friendship, error)
	UpdateStatus(ctx context.Context, id int, status string) (models.Friendship, error)
	Delete(ctx context.Context, id int) error
	DeleteAccepted(ctx context.Context, userID, otherID int) (int, error)
	ListIncoming(ctx context.Context, userID int) ([]models.Friendship, error)
	ListOutgoing(ctx context.Context, userID int) ([]models.Friendship, error)
	ListFriends(ctx context.Context, userID int) ([]models.Friendship, error)
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct {
	db *sqlx.DB
}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo(db *sqlx.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

const friendshipColumns = `id, sender_id, receiver_id, status, created_at`

// CreateRequest purges stale rejected rows between the pair and inserts a
// fresh pending row in one transaction. The partial unique index on the
// normalized pair turns a lost check-then-insert race into ErrDuplicateFriendship.
func (r *FriendshipRepo) CreateRequest(ctx context.Context, senderID, receiverID int) (models.Friendship, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Friendship{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM friendships
         WHERE status='rejected'
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`,
		senderID, receiverID); err != nil {
		return models.Friendship{}, err
	}

	var friendship models.Friendship
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO friendships (sender_id, receiver_id, status) VALUES ($1, $2, 'pending')
         RETURNING `+friendshipColumns,
		senderID, receiverID).
		Scan(&friendship.ID, &friendship.SenderID, &friendship.ReceiverID, &friendship.Status, &friendship.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateFriendship
		}
		return models.Friendship{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Friendship{}, err
	}
	return friendship, nil
}

// Get fetches a friendship row by id.
func (r *FriendshipRepo) Get(ctx context.Context, id int) (models.Friendship, error) {
	var friendship models.Friendship
	err := r.db.GetContext(ctx, &friendship,
		`SELECT `+friendshipColumns+` FROM friendships WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	return friendship, err
}

// FindActiveBetween returns the pending or accepted row between the pair in
// either direction, if one exists.
func (r *FriendshipRepo) FindActiveBetween(ctx context.Context, userA, userB int) (models.Friendship, error) {
	var friendship models.Friendship
	err := r.db.GetContext(ctx, &friendship,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE status IN ('pending', 'accepted')
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`,
		userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	return friendship, err
}

// UpdateStatus transitions the row and returns the updated state.
func (r *FriendshipRepo) UpdateStatus(ctx context.Context, id int, status string) (models.Friendship, error) {
	var friendship models.Friendship
	err := r.db.QueryRowxContext(ctx,
		`UPDATE friendships SET status=$1 WHERE id=$2 RETURNING `+friendshipColumns,
		status, id).
		Scan(&friendship.ID, &friendship.SenderID, &friendship.ReceiverID, &friendship.Status, &friendship.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friendship{}, ErrFriendshipNotFound
	}
	return friendship, err
}

// Delete removes the row entirely (sender cancelling a pending request).
func (r *FriendshipRepo) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friendships WHERE id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// DeleteAccepted removes accepted rows between the pair, defensively in both
// directions though the pair invariant guarantees at most one.
func (r *FriendshipRepo) DeleteAccepted(ctx context.Context, userID, otherID int) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM friendships
         WHERE status='accepted'
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`,
		userID, otherID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ListIncoming returns pending requests addressed to the user.
func (r *FriendshipRepo) ListIncoming(ctx context.Context, userID int) ([]models.Friendship, error) {
	var rows []models.Friendship
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE receiver_id=$1 AND status='pending' ORDER BY created_at DESC`, userID)
	return rows, err
}

// ListOutgoing returns pending requests the user has sent.
func (r *FriendshipRepo) ListOutgoing(ctx context.Context, userID int) ([]models.Friendship, error) {
	var rows []models.Friendship
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE sender_id=$1 AND status='pending' ORDER BY created_at DESC`, userID)
	return rows, err
}

// ListFriends returns accepted rows involving the user in either direction.
func (r *FriendshipRepo) ListFriends(ctx context.Context, userID int) ([]models.Friendship, error) {
	var rows []models.Friendship
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+friendshipColumns+` FROM friendships
         WHERE status='accepted' AND (sender_id=$1 OR receiver_id=$1) ORDER BY created_at DESC`, userID)
	return rows, err
}
