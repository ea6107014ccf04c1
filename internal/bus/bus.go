package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event is a broadcast envelope as seen by subscribers.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Bus is the publish/subscribe broadcast layer. Delivery is at-least-once
// per live subscriber with best-effort same-channel ordering; a publish
// failure never rolls back the state mutation that triggered it.
type Bus interface {
	Publish(ctx context.Context, channel, name string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Close() error
}

// Subscription is a live stream of events for a set of channels, torn down
// with Close when the client disconnects.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// GlobalChats is the channel carrying chat creation and deletion for all users.
const GlobalChats = "chats"

// ChatChannel names the per-chat channel.
func ChatChannel(chatID int) string {
	return fmt.Sprintf("chat-%d", chatID)
}

// UserChannel names the per-user friendship channel.
func UserChannel(userID int) string {
	return fmt.Sprintf("user-%d", userID)
}

// UserNotificationsChannel names the per-user notification channel.
func UserNotificationsChannel(userID int) string {
	return fmt.Sprintf("user-%d-notifications", userID)
}

func encode(channel, name string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Event{Channel: channel, Name: name, Payload: raw})
}
