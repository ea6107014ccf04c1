package models

import "time"

// Message is a chat message. Messages are immutable once created and are
// removed only by the cascade when their chat is deleted.
type Message struct {
	ID        int       `db:"id" json:"id"`
	ChatID    int       `db:"chat_id" json:"chat_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageView is a message decorated with the author's display attributes,
// as delivered to clients over HTTP and the broadcast channel.
type MessageView struct {
	Message
	SenderUsername string `json:"sender_username,omitempty"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`
}
