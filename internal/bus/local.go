package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
)

// LocalBus is an in-process Bus for single-node deployments and tests,
// used when no Redis URL is configured. Slow subscribers are skipped once
// their buffer fills; clients recover by re-fetching on reconnect.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSubscription]struct{}
	closed bool
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSubscription]struct{})}
}

// Publish delivers the event to every live subscriber of the channel.
func (b *LocalBus) Publish(ctx context.Context, channel, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{Channel: channel, Name: name, Payload: raw}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus closed")
	}
	for sub := range b.subs[channel] {
		select {
		case sub.events <- ev:
		default:
			log.Printf("bus: subscriber buffer full, dropping %s on %s", name, channel)
		}
	}
	return nil
}

// Subscribe registers a subscriber for the channels.
func (b *LocalBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	sub := &localSubscription{
		bus:      b,
		channels: channels,
		events:   make(chan Event, 64),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bus closed")
	}
	for _, ch := range channels {
		if _, ok := b.subs[ch]; !ok {
			b.subs[ch] = make(map[*localSubscription]struct{})
		}
		b.subs[ch][sub] = struct{}{}
	}
	return sub, nil
}

// Close tears down all subscriptions.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	seen := make(map[*localSubscription]struct{})
	for _, subs := range b.subs {
		for sub := range subs {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			close(sub.events)
		}
	}
	b.subs = make(map[string]map[*localSubscription]struct{})
	return nil
}

type localSubscription struct {
	bus      *LocalBus
	channels []string
	events   chan Event
	once     sync.Once
}

func (s *localSubscription) Events() <-chan Event {
	return s.events
}

func (s *localSubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for _, ch := range s.channels {
		if subs, ok := s.bus.subs[ch]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.subs, ch)
			}
		}
	}
	if !s.bus.closed {
		s.once.Do(func() { close(s.events) })
	}
	return nil
}

var _ Bus = (*LocalBus)(nil)
var _ Bus = (*RedisBus)(nil)
