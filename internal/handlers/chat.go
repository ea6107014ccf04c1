package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-service/internal/bus"
	"social-service/internal/identity"
	"social-service/internal/models"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

// ChatHandler manages chat lifecycle endpoints.
type ChatHandler struct {
	chatRepo  repositories.ChatRepository
	directory identity.Directory
	bus       bus.Bus
	audit     *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, directory identity.Directory, eventBus bus.Bus, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:  chatRepo,
		directory: directory,
		bus:       eventBus,
		audit:     audit,
	}
}

// CreateChat creates a chat with the caller plus the requested participants.
// An unnamed two-person chat is a direct chat; at most one direct chat may
// exist per user pair, so a second attempt conflicts with the existing one.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Name           *string `json:"name"`
		ParticipantIDs []int   `json:"participant_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.emitAudit(c, "ERROR", "invalid request payload")
		return
	}

	userID := c.GetInt("userID")
	ids := append([]int{userID}, req.ParticipantIDs...)

	others := make([]int, 0, len(req.ParticipantIDs))
	for _, id := range req.ParticipantIDs {
		if id != userID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat needs at least one other participant"})
		return
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), others)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	known := make(map[int]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	for _, id := range others {
		if _, ok := known[id]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant " + strconv.Itoa(id)})
			return
		}
	}

	if req.Name == nil && len(others) == 1 {
		existing, err := h.chatRepo.FindDirectChat(c.Request.Context(), userID, others[0])
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "direct chat already exists", "chat_id": existing.ID})
			return
		}
		if !errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
			return
		}
	}

	chat, err := h.chatRepo.CreateChat(c.Request.Context(), req.Name, ids)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateChat) {
			c.JSON(http.StatusConflict, gin.H{"error": "direct chat already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	participants, err := h.chatRepo.Participants(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load participants"})
		return
	}
	participantIDs := make([]int, 0, len(participants))
	for _, p := range participants {
		participantIDs = append(participantIDs, p.UserID)
	}

	publish(c, h.bus, bus.GlobalChats, models.EventNewChat, models.NewChatEvent{
		Chat:           chat,
		ParticipantIDs: participantIDs,
	})
	h.emitAudit(c, "INFO", "Chat created")

	c.JSON(http.StatusCreated, gin.H{"chat": chat, "participant_ids": participantIDs})
}

// ListChats returns the chats visible to the authenticated user, decorated
// with participant display attributes from the identity service.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	idSet := map[int]struct{}{}
	var allIDs []int
	for _, chat := range chats {
		for _, id := range chat.ParticipantIDs {
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				allIDs = append(allIDs, id)
			}
		}
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), allIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	usersByID := map[int]identity.User{}
	for _, u := range users {
		usersByID[u.ID] = u
	}

	type participantResponse struct {
		UserID   int    `json:"user_id"`
		Username string `json:"username,omitempty"`
	}
	type chatResponse struct {
		models.ChatSummary
		Participants []participantResponse `json:"participants"`
	}

	responses := make([]chatResponse, 0, len(chats))
	for _, chat := range chats {
		participants := make([]participantResponse, 0, len(chat.ParticipantIDs))
		for _, id := range chat.ParticipantIDs {
			participants = append(participants, participantResponse{
				UserID:   id,
				Username: usersByID[id].Username,
			})
		}
		responses = append(responses, chatResponse{ChatSummary: chat, Participants: participants})
	}

	c.JSON(http.StatusOK, gin.H{"chats": responses})
}

// AddParticipants adds users to a named chat. Direct chats are fixed to
// their pair and reject additions.
func (h *ChatHandler) AddParticipants(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		UserIDs []int `json:"user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
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
	if chat.Direct() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot add participants to a direct chat"})
		return
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), req.UserIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	known := make(map[int]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	for _, id := range req.UserIDs {
		if _, ok := known[id]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant " + strconv.Itoa(id)})
			return
		}
	}

	if err := h.chatRepo.AddParticipants(c.Request.Context(), chatID, req.UserIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add participants"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	publish(c, h.bus, bus.ChatChannel(chatID), models.EventParticipantsAdded, models.ParticipantsAddedEvent{
		ChatID:  chatID,
		UserIDs: req.UserIDs,
	})
	h.emitAudit(c, "INFO", "Participants added")

	c.Status(http.StatusNoContent)
}

// LeaveChat removes the caller from the chat. The last participant leaving
// deletes the chat entirely.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	userID := c.GetInt("userID")

	remaining, err := h.chatRepo.RemoveParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave chat"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	if remaining == 0 {
		publish(c, h.bus, bus.GlobalChats, models.EventChatDeleted, models.ChatDeletedEvent{
			ChatID:         chatID,
			ParticipantIDs: []int{userID},
		})
	} else {
		publish(c, h.bus, bus.ChatChannel(chatID), models.EventParticipantLeft, models.ParticipantLeftEvent{
			ChatID: chatID,
			UserID: userID,
		})
	}
	h.emitAudit(c, "INFO", "Left chat")

	c.Status(http.StatusNoContent)
}

// DeleteChat removes the chat for everyone. The former participant list
// rides on the event so every client can drop the chat locally.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	userID := c.GetInt("userID")

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	participants, err := h.chatRepo.Participants(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load participants"})
		return
	}
	participantIDs := make([]int, 0, len(participants))
	for _, p := range participants {
		participantIDs = append(participantIDs, p.UserID)
	}

	if err := h.chatRepo.DeleteChat(c.Request.Context(), chatID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete chat"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	publish(c, h.bus, bus.GlobalChats, models.EventChatDeleted, models.ChatDeletedEvent{
		ChatID:         chatID,
		ParticipantIDs: participantIDs,
	})
	h.emitAudit(c, "INFO", "Chat deleted")

	c.Status(http.StatusNoContent)
}

// SetMuted flips the caller's mute flag on the chat. Muting suppresses
// notifications only; messages keep flowing on the chat channel.
func (h *ChatHandler) SetMuted(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if err := h.chatRepo.SetMuted(c.Request.Context(), chatID, userID, *req.Muted); err != nil {
		if errors.Is(err, repositories.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update mute state"})
		return
	}

	publish(c, h.bus, bus.ChatChannel(chatID), models.EventChatMuted, models.ChatMutedEvent{
		ChatID: chatID,
		UserID: userID,
		Muted:  *req.Muted,
	})

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "muted": *req.Muted})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
