package models

import "time"

// Notification types produced by the aggregator.
const (
	NotificationTypeMessage       = "message"
	NotificationTypeFriendRequest = "friend_request"
	NotificationTypeFriendAccept  = "friend_accept"
	NotificationTypeFriendReject  = "friend_reject"
)

// Notification is a single alert or a coalesced burst of same-type alerts
// within the aggregator's trailing window. Count is 1 for a single event.
type Notification struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Count     int       `db:"count" json:"count"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
