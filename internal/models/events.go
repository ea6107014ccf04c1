package models

// Event names carried on broadcast channels. Each name has exactly one
// payload shape so subscribers can match exhaustively.
const (
	EventNewChat               = "new-chat"
	EventChatDeleted           = "chat-deleted"
	EventNewMessage            = "new-message"
	EventParticipantsAdded     = "participants-added"
	EventParticipantLeft       = "participant-left"
	EventChatMuted             = "chat-muted"
	EventFriendRequestSent     = "friend-request-sent"
	EventFriendRequestReceived = "friend-request-received"
	EventFriendshipUpdated     = "friendship-updated"
	EventFriendshipRemoved     = "friendship-removed"
	EventNewNotification       = "new-notification"
	EventNotificationUpdated   = "notification-updated"
)

// NewChatEvent announces a created chat on the global chats channel.
type NewChatEvent struct {
	Chat           Chat  `json:"chat"`
	ParticipantIDs []int `json:"participant_ids"`
}

// ChatDeletedEvent announces a deleted chat on the global chats channel.
// ParticipantIDs holds the full former participant list so every client can
// drop the chat from its local list, not just clients subscribed to the
// chat's own channel.
type ChatDeletedEvent struct {
	ChatID         int   `json:"chat_id"`
	ParticipantIDs []int `json:"participant_ids"`
}

// ParticipantsAddedEvent is published on the chat's channel.
type ParticipantsAddedEvent struct {
	ChatID  int   `json:"chat_id"`
	UserIDs []int `json:"user_ids"`
}

// ParticipantLeftEvent is published on the chat's channel.
type ParticipantLeftEvent struct {
	ChatID int `json:"chat_id"`
	UserID int `json:"user_id"`
}

// ChatMutedEvent is published on the chat's channel; recipients filter by
// UserID client-side.
type ChatMutedEvent struct {
	ChatID int  `json:"chat_id"`
	UserID int  `json:"user_id"`
	Muted  bool `json:"muted"`
}

// FriendshipEvent carries a friendship row to both parties' user channels.
type FriendshipEvent struct {
	Friendship Friendship `json:"friendship"`
}

// FriendshipRemovedEvent announces a cancelled request or an unfriend to
// both parties' user channels.
type FriendshipRemovedEvent struct {
	FriendshipID int `json:"friendship_id,omitempty"`
	UserID       int `json:"user_id"`
	OtherID      int `json:"other_id"`
}
