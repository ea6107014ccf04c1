package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"social-service/internal/models"
)

// ChatRepository abstracts chat and participant persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, name *string, participantIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	Participants(ctx context.Context, chatID int) ([]models.ChatParticipant, error)
	AddParticipants(ctx context.Context, chatID int, userIDs []int) error
	RemoveParticipant(ctx context.Context, chatID, userID int) (remaining int, err error)
	DeleteChat(ctx context.Context, chatID int) error
	SetMuted(ctx context.Context, chatID, userID int, muted bool) error
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
	Touch(ctx context.Context, chatID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// directKey returns the normalized pair fingerprint for a direct chat.
func directKey(userA, userB int) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// CreateChat inserts a chat and its participant rows atomically. Unnamed
// chats with exactly two participants carry a direct_key; a duplicate key
// insert means the pair already has a direct chat.
func (r *ChatRepo) CreateChat(ctx context.Context, name *string, participantIDs []int) (models.Chat, error) {
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return models.Chat{}, errors.New("participant list is empty")
	}

	var key *string
	if name == nil && len(ids) == 2 {
		k := directKey(ids[0], ids[1])
		key = &k
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (name, direct_key) VALUES ($1, $2) RETURNING id, name, direct_key, created_at, updated_at`,
		name, key).
		Scan(&chat.ID, &chat.Name, &chat.DirectKey, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateChat
		}
		return models.Chat{}, err
	}

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, name, direct_key, created_at, updated_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// FindDirectChat looks up the direct chat between two users, if any.
func (r *ChatRepo) FindDirectChat(ctx context.Context, userA, userB int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, name, direct_key, created_at, updated_at FROM chats WHERE direct_key=$1`,
		directKey(userA, userB))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether the user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// Participants returns all participant rows of the chat.
func (r *ChatRepo) Participants(ctx context.Context, chatID int) ([]models.ChatParticipant, error) {
	var participants []models.ChatParticipant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT chat_id, user_id, muted FROM chat_participants WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return participants, err
}

// AddParticipants inserts new participant rows, ignoring users already present.
func (r *ChatRepo) AddParticipants(ctx context.Context, chatID int, userIDs []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, id := range dedupe(userIDs) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			chatID, id); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// RemoveParticipant deletes the user's participant row and, when it was the
// last one, the chat itself (cascading messages). Returns the number of
// participants left after removal.
func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM chat_participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		err = ErrNotParticipant
		return 0, err
	}

	var remaining int
	if err = tx.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM chat_participants WHERE chat_id=$1`, chatID).Scan(&remaining); err != nil {
		return 0, err
	}
	if remaining == 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// DeleteChat removes the chat; messages and participants go with the cascade.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SetMuted updates the participant's mute flag.
func (r *ChatRepo) SetMuted(ctx context.Context, chatID, userID int, muted bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET muted=$1 WHERE chat_id=$2 AND user_id=$3`, muted, chatID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotParticipant
	}
	return nil
}

// ListChats returns summaries of the chats the user participates in.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	type row struct {
		models.Chat
		Muted bool `db:"muted"`
	}
	var chats []row
	err := r.db.SelectContext(ctx, &chats,
		`SELECT c.id, c.name, c.direct_key, c.created_at, c.updated_at, cp.muted
         FROM chats c
         INNER JOIN chat_participants cp ON cp.chat_id = c.id
         WHERE cp.user_id=$1
         ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, c := range chats {
		participants, err := r.Participants(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.UserID)
		}
		summaries = append(summaries, models.ChatSummary{
			ChatID:         c.ID,
			Name:           c.Name,
			Direct:         c.Direct(),
			Muted:          c.Muted,
			ParticipantIDs: ids,
			UpdatedAt:      c.UpdatedAt,
		})
	}
	return summaries, nil
}

// Touch bumps the chat's updated_at, used when activity should resurface it.
func (r *ChatRepo) Touch(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	return err
}

func dedupe(ids []int) []int {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
