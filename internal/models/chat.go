package models

import "time"

// Chat is a conversation. A direct chat between exactly two users carries
// the normalized pair fingerprint in DirectKey; group chats leave it nil.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name"`
	DirectKey *string   `db:"direct_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Direct reports whether the chat is a direct chat.
func (c Chat) Direct() bool {
	return c.DirectKey != nil
}

// ChatParticipant grants a user membership in a chat.
type ChatParticipant struct {
	ChatID int  `db:"chat_id" json:"chat_id"`
	UserID int  `db:"user_id" json:"user_id"`
	Muted  bool `db:"muted" json:"muted"`
}

// ChatSummary is the API-friendly view of a chat for one user.
type ChatSummary struct {
	ChatID         int       `json:"chat_id"`
	Name           *string   `json:"name"`
	Direct         bool      `json:"direct"`
	Muted          bool      `json:"muted"`
	ParticipantIDs []int     `json:"participant_ids"`
	UpdatedAt      time.Time `json:"updated_at"`
}
