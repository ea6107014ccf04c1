package models

import "time"

// Friendship statuses. For any unordered user pair at most one row with
// status pending or accepted exists at a time; rejected rows may accumulate
// until the next request between the pair purges them.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// Friendship is one edge of the social graph, directed sender -> receiver.
type Friendship struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Other returns the counterpart of userID on this edge.
func (f Friendship) Other(userID int) int {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}
