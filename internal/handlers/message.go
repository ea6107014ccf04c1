package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-service/internal/bus"
	"social-service/internal/identity"
	"social-service/internal/models"
	"social-service/internal/notifications"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

// MessageHandler manages the message path of a chat.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	directory   identity.Directory
	bus         bus.Bus
	notifier    notifications.Notifier
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, directory identity.Directory, eventBus bus.Bus, notifier notifications.Notifier, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		directory:   directory,
		bus:         eventBus,
		notifier:    notifier,
		audit:       audit,
	}
}

// GetMessages returns the chat's messages in send order, decorated with
// sender display attributes.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	if _, err := h.chatRepo.GetChat(c.Request.Context(), chatID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]int, 0, len(msgs))
	senderIDSet := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := senderIDSet[m.SenderID]; !ok {
			senderIDSet[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
		return
	}
	usersByID := map[int]identity.User{}
	for _, u := range users {
		usersByID[u.ID] = u
	}

	resp := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender := usersByID[m.SenderID]
		resp = append(resp, models.MessageView{
			Message:        m,
			SenderUsername: sender.Username,
			SenderAvatar:   sender.AvatarURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// PostMessage stores a message, broadcasts it on the chat's channel and
// notifies every other unmuted participant.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	if _, err := h.chatRepo.GetChat(c.Request.Context(), chatID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		h.emitAudit(c, "ERROR", "not allowed")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.emitAudit(c, "ERROR", "invalid request payload")
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	// Resurface the chat at the top of everyone's list.
	if err := h.chatRepo.Touch(c.Request.Context(), chatID); err != nil {
		log.Printf("touch chat %d failed: %v", chatID, err)
	}

	sender, err := h.directory.User(c.Request.Context(), userID)
	if err != nil {
		log.Printf("load sender %d failed: %v", userID, err)
	}
	view := models.MessageView{
		Message:        msg,
		SenderUsername: sender.Username,
		SenderAvatar:   sender.AvatarURL,
	}

	publish(c, h.bus, bus.ChatChannel(chatID), models.EventNewMessage, view)
	h.notifyParticipants(c, chatID, userID, sender.Username)
	h.emitAudit(c, "INFO", "Message sent")

	c.JSON(http.StatusCreated, view)
}

// notifyParticipants alerts everyone except the sender, skipping muted
// participants. Notification failures never fail the send.
func (h *MessageHandler) notifyParticipants(c *gin.Context, chatID, senderID int, senderUsername string) {
	participants, err := h.chatRepo.Participants(c.Request.Context(), chatID)
	if err != nil {
		log.Printf("load participants of chat %d failed: %v", chatID, err)
		return
	}

	text := "New message from " + senderUsername
	if senderUsername == "" {
		text = "You have a new message"
	}
	for _, p := range participants {
		if p.UserID == senderID || p.Muted {
			continue
		}
		if _, _, err := h.notifier.Notify(c.Request.Context(), p.UserID, models.NotificationTypeMessage, "New Message", text); err != nil {
			log.Printf("notify user %d failed: %v", p.UserID, err)
		}
	}
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
