package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"social-service/internal/bus"
	"social-service/internal/identity"
	"social-service/internal/observability"
	"social-service/internal/repositories"
)

// SubscribeHandler upgrades clients and registers them on the broadcast
// channels requested via the channels query parameter.
type SubscribeHandler struct {
	hub       *Hub
	chatRepo  repositories.ChatRepository
	directory identity.Directory
}

// NewSubscribeHandler constructs a SubscribeHandler.
func NewSubscribeHandler(hub *Hub, chatRepo repositories.ChatRepository, directory identity.Directory) *SubscribeHandler {
	return &SubscribeHandler{hub: hub, chatRepo: chatRepo, directory: directory}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the token, authorizes every requested channel, upgrades
// the connection and keeps it registered until the client goes away.
func (h *SubscribeHandler) Handle(c *gin.Context) {
	channels := parseChannels(c.Query("channels"))
	if len(channels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channels"})
		return
	}

	ctx, span := otel.Tracer("social-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.directory.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	for _, channel := range channels {
		allowed, err := h.authorize(c.Request.Context(), channel, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authorize channel"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for channel " + channel})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := NewConnInfo(
		newConnID(),
		userID,
		observability.DeviceIDFromRequest(c.Request),
		observability.IPFromRequest(c.Request),
		requestID,
		traceID,
	)

	registered := make([]string, 0, len(channels))
	for _, channel := range channels {
		if err := h.hub.AddClient(channel, conn, info); err != nil {
			for _, ch := range registered {
				h.hub.RemoveClient(ch, conn)
			}
			conn.Close()
			return
		}
		registered = append(registered, channel)
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.social", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"channels":    strings.Join(registered, ","),
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
				"duration_ms": 0,
				"reason":      "",
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			for _, ch := range registered {
				h.hub.RemoveClient(ch, conn)
			}
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(ctx, "ws_events.social", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload: map[string]interface{}{
					"ws": map[string]interface{}{
						"channels":    strings.Join(registered, ","),
						"event":       "ws_disconnect",
						"conn_id":     info.ConnID,
						"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
						"reason":      closeReason,
					},
					"identity": map[string]interface{}{
						"user_id":   info.UserID,
						"device_id": info.DeviceID,
						"ip":        info.IP,
					},
				},
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				return
			}
		}
	}()
}

// authorize decides whether userID may subscribe to channel. The global
// chats channel is open to any authenticated user, chat channels require
// membership and user channels are private to their owner.
func (h *SubscribeHandler) authorize(ctx context.Context, channel string, userID int) (bool, error) {
	switch {
	case channel == bus.GlobalChats:
		return true, nil
	case strings.HasPrefix(channel, "chat-"):
		chatID, err := strconv.Atoi(strings.TrimPrefix(channel, "chat-"))
		if err != nil {
			return false, nil
		}
		return h.chatRepo.IsParticipant(ctx, chatID, userID)
	case strings.HasPrefix(channel, "user-"):
		rest := strings.TrimPrefix(channel, "user-")
		rest = strings.TrimSuffix(rest, "-notifications")
		id, err := strconv.Atoi(rest)
		if err != nil {
			return false, nil
		}
		return id == userID, nil
	default:
		return false, nil
	}
}

func parseChannels(raw string) []string {
	seen := make(map[string]struct{})
	var channels []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		channels = append(channels, part)
	}
	return channels
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return header
	}
	return c.Query("token")
}
