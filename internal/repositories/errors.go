package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrChatNotFound         = errors.New("chat not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("not a chat participant")
	ErrDuplicateChat        = errors.New("direct chat already exists")
	ErrFriendshipNotFound   = errors.New("friendship not found")
	ErrDuplicateFriendship  = errors.New("active friendship already exists")
	ErrNotificationNotFound = errors.New("notification not found")
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Check-then-insert races surface here and are mapped to the
// same conflict errors as the advisory existence checks.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
