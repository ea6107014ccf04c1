package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"social-service/internal/bus"
	"social-service/internal/observability"
)

// Hub maintains websocket rooms keyed by broadcast channel name and bridges
// them to the event bus: one bus subscription per channel with at least one
// live client, fanned out to every conn in the room.
type Hub struct {
	bus   bus.Bus
	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]ConnInfo
	subs  map[string]bus.Subscription
}

// NewHub creates an empty hub on top of the bus.
func NewHub(eventBus bus.Bus) *Hub {
	return &Hub{
		bus:   eventBus,
		rooms: make(map[string]map[*websocket.Conn]ConnInfo),
		subs:  make(map[string]bus.Subscription),
	}
}

// frame is what clients receive for every event on a subscribed channel.
type frame struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AddClient registers a connection on a channel, opening the bus
// subscription when this is the channel's first client.
func (h *Hub) AddClient(channel string, conn *websocket.Conn, info ConnInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[channel]; !ok {
		sub, err := h.bus.Subscribe(context.Background(), channel)
		if err != nil {
			return err
		}
		h.rooms[channel] = make(map[*websocket.Conn]ConnInfo)
		h.subs[channel] = sub
		go h.pump(channel, sub)
	}
	h.rooms[channel][conn] = info
	return nil
}

// RemoveClient drops a connection from a channel, tearing the bus
// subscription down when the room empties.
func (h *Hub) RemoveClient(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channel, conn)
}

func (h *Hub) removeLocked(channel string, conn *websocket.Conn) {
	conns, ok := h.rooms[channel]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.rooms, channel)
		if sub, ok := h.subs[channel]; ok {
			delete(h.subs, channel)
			_ = sub.Close()
		}
	}
}

func (h *Hub) pump(channel string, sub bus.Subscription) {
	for ev := range sub.Events() {
		h.broadcast(channel, ev)
	}
}

// broadcast writes the event to every client in the channel's room, closing
// and unregistering conns that fail.
func (h *Hub) broadcast(channel string, ev bus.Event) {
	payload, err := json.Marshal(frame{Channel: channel, Type: ev.Name, Payload: ev.Payload})
	if err != nil {
		log.Printf("ws: marshal frame for %s: %v", channel, err)
		return
	}

	h.mu.RLock()
	targets := make(map[*websocket.Conn]ConnInfo, len(h.rooms[channel]))
	for conn, info := range h.rooms[channel] {
		targets[conn] = info
	}
	h.mu.RUnlock()

	for conn, info := range targets {
		info.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		info.writeMu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveClient(channel, conn)
			h.publishWSError(channel, info, err)
		}
	}
}

// RoomSize reports the number of connections in a channel's room.
func (h *Hub) RoomSize(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}

func (h *Hub) publishWSError(channel string, info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"channel":     channel,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.social", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
