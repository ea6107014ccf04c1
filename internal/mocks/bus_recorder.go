package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"social-service/internal/bus"
)

// PublishedEvent is one captured broadcast.
type PublishedEvent struct {
	Channel string
	Name    string
	Payload json.RawMessage
}

// BusRecorder is a bus.Bus that records publishes synchronously so tests can
// assert on them. Err, when set, is returned from every Publish.
type BusRecorder struct {
	mu        sync.Mutex
	Err       error
	Published []PublishedEvent
}

func (b *BusRecorder) Publish(ctx context.Context, channel, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.Published = append(b.Published, PublishedEvent{Channel: channel, Name: name, Payload: raw})
	b.mu.Unlock()
	return b.Err
}

func (b *BusRecorder) Subscribe(ctx context.Context, channels ...string) (bus.Subscription, error) {
	return nil, nil
}

func (b *BusRecorder) Close() error {
	return nil
}

// OnChannel returns the captured events published to the channel, in order.
func (b *BusRecorder) OnChannel(channel string) []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PublishedEvent
	for _, ev := range b.Published {
		if ev.Channel == channel {
			out = append(out, ev)
		}
	}
	return out
}

// Named returns the captured events with the given name, in order.
func (b *BusRecorder) Named(name string) []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PublishedEvent
	for _, ev := range b.Published {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

var _ bus.Bus = (*BusRecorder)(nil)
