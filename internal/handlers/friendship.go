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

// FriendshipHandler manages the social-graph endpoints.
type FriendshipHandler struct {
	friendRepo repositories.FriendshipRepository
	directory  identity.Directory
	bus        bus.Bus
	notifier   notifications.Notifier
	audit      *telemetry.AuditEmitter
}

// NewFriendshipHandler builds a FriendshipHandler.
func NewFriendshipHandler(friendRepo repositories.FriendshipRepository, directory identity.Directory, eventBus bus.Bus, notifier notifications.Notifier, audit *telemetry.AuditEmitter) *FriendshipHandler {
	return &FriendshipHandler{
		friendRepo: friendRepo,
		directory:  directory,
		bus:        eventBus,
		notifier:   notifier,
		audit:      audit,
	}
}

// SendRequest creates a pending friendship towards the receiver. At most one
// pending or accepted row may exist per pair in either direction.
func (h *FriendshipHandler) SendRequest(c *gin.Context) {
	var req struct {
		ReceiverID int `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.emitAudit(c, "ERROR", "invalid request payload")
		return
	}

	userID := c.GetInt("userID")
	if req.ReceiverID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot befriend yourself"})
		return
	}

	if _, err := h.directory.User(c.Request.Context(), req.ReceiverID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	if existing, err := h.friendRepo.FindActiveBetween(c.Request.Context(), userID, req.ReceiverID); err == nil {
		msg := "friend request already pending"
		if existing.Status == models.FriendshipAccepted {
			msg = "already friends"
		}
		c.JSON(http.StatusConflict, gin.H{"error": msg})
		return
	} else if !errors.Is(err, repositories.ErrFriendshipNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send friend request"})
		return
	}

	friendship, err := h.friendRepo.CreateRequest(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateFriendship) {
			c.JSON(http.StatusConflict, gin.H{"error": "friend request already pending"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send friend request"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	event := models.FriendshipEvent{Friendship: friendship}
	publish(c, h.bus, bus.UserChannel(userID), models.EventFriendRequestSent, event)
	publish(c, h.bus, bus.UserChannel(req.ReceiverID), models.EventFriendRequestReceived, event)

	sender, err := h.directory.User(c.Request.Context(), userID)
	if err != nil {
		log.Printf("load sender %d failed: %v", userID, err)
	}
	text := "New friend request"
	if sender.Username != "" {
		text = sender.Username + " sent you a friend request"
	}
	if _, _, err := h.notifier.Notify(c.Request.Context(), req.ReceiverID, models.NotificationTypeFriendRequest, "Friend Request", text); err != nil {
		log.Printf("notify user %d failed: %v", req.ReceiverID, err)
	}
	h.emitAudit(c, "INFO", "Friend request sent")

	c.JSON(http.StatusCreated, gin.H{"friendship": friendship})
}

// Accept transitions a pending request to accepted. Only the receiver may
// accept, and only while the request is still pending.
func (h *FriendshipHandler) Accept(c *gin.Context) {
	h.resolve(c, models.FriendshipAccepted)
}

// Reject transitions a pending request to rejected. The rejected row stays
// behind so either side can start over later.
func (h *FriendshipHandler) Reject(c *gin.Context) {
	h.resolve(c, models.FriendshipRejected)
}

func (h *FriendshipHandler) resolve(c *gin.Context, status string) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friendship id"})
		return
	}
	userID := c.GetInt("userID")

	friendship, err := h.friendRepo.Get(c.Request.Context(), id)
	if err != nil {
		httpStatus := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			httpStatus = http.StatusNotFound
		}
		c.JSON(httpStatus, gin.H{"error": "friendship not found"})
		return
	}
	if friendship.ReceiverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the receiver can resolve a request"})
		h.emitAudit(c, "ERROR", "not allowed")
		return
	}
	if friendship.Status != models.FriendshipPending {
		c.JSON(http.StatusConflict, gin.H{"error": "request is not pending"})
		return
	}

	updated, err := h.friendRepo.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update friendship"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	event := models.FriendshipEvent{Friendship: updated}
	publish(c, h.bus, bus.UserChannel(updated.SenderID), models.EventFriendshipUpdated, event)
	publish(c, h.bus, bus.UserChannel(updated.ReceiverID), models.EventFriendshipUpdated, event)

	receiver, err := h.directory.User(c.Request.Context(), userID)
	if err != nil {
		log.Printf("load receiver %d failed: %v", userID, err)
	}
	if status == models.FriendshipAccepted {
		text := "Your friend request was accepted"
		if receiver.Username != "" {
			text = receiver.Username + " accepted your friend request"
		}
		if _, _, err := h.notifier.Notify(c.Request.Context(), updated.SenderID, models.NotificationTypeFriendAccept, "Friend Request Accepted", text); err != nil {
			log.Printf("notify user %d failed: %v", updated.SenderID, err)
		}
		h.emitAudit(c, "INFO", "Friend request accepted")
	} else {
		text := "Your friend request was declined"
		if receiver.Username != "" {
			text = receiver.Username + " declined your friend request"
		}
		if _, _, err := h.notifier.Notify(c.Request.Context(), updated.SenderID, models.NotificationTypeFriendReject, "Friend Request Declined", text); err != nil {
			log.Printf("notify user %d failed: %v", updated.SenderID, err)
		}
		h.emitAudit(c, "INFO", "Friend request declined")
	}

	c.JSON(http.StatusOK, gin.H{"friendship": updated})
}

// Cancel removes a pending request the caller sent. Unlike a rejection the
// receiver is not notified; the request silently disappears from their list.
func (h *FriendshipHandler) Cancel(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friendship id"})
		return
	}
	userID := c.GetInt("userID")

	friendship, err := h.friendRepo.Get(c.Request.Context(), id)
	if err != nil {
		httpStatus := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			httpStatus = http.StatusNotFound
		}
		c.JSON(httpStatus, gin.H{"error": "friendship not found"})
		return
	}
	if friendship.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can cancel a request"})
		h.emitAudit(c, "ERROR", "not allowed")
		return
	}
	if friendship.Status != models.FriendshipPending {
		c.JSON(http.StatusConflict, gin.H{"error": "request is not pending"})
		return
	}

	if err := h.friendRepo.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel request"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}

	event := models.FriendshipRemovedEvent{
		FriendshipID: id,
		UserID:       friendship.SenderID,
		OtherID:      friendship.ReceiverID,
	}
	publish(c, h.bus, bus.UserChannel(friendship.SenderID), models.EventFriendshipRemoved, event)
	publish(c, h.bus, bus.UserChannel(friendship.ReceiverID), models.EventFriendshipRemoved, event)
	h.emitAudit(c, "INFO", "Friend request cancelled")

	c.Status(http.StatusNoContent)
}

// Unfriend dissolves an accepted friendship between the caller and the
// other user. Either side may unfriend; the other side is not notified
// beyond the removal event.
func (h *FriendshipHandler) Unfriend(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	removed, err := h.friendRepo.DeleteAccepted(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unfriend"})
		h.emitAudit(c, "ERROR", "internal error")
		return
	}
	if removed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not friends"})
		return
	}

	event := models.FriendshipRemovedEvent{UserID: userID, OtherID: otherID}
	publish(c, h.bus, bus.UserChannel(userID), models.EventFriendshipRemoved, event)
	publish(c, h.bus, bus.UserChannel(otherID), models.EventFriendshipRemoved, event)
	h.emitAudit(c, "INFO", "Unfriended")

	c.Status(http.StatusNoContent)
}

// ListIncoming returns pending requests addressed to the caller.
func (h *FriendshipHandler) ListIncoming(c *gin.Context) {
	userID := c.GetInt("userID")
	rows, err := h.friendRepo.ListIncoming(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	h.respondWithRequests(c, userID, rows)
}

// ListOutgoing returns pending requests the caller has sent.
func (h *FriendshipHandler) ListOutgoing(c *gin.Context) {
	userID := c.GetInt("userID")
	rows, err := h.friendRepo.ListOutgoing(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	h.respondWithRequests(c, userID, rows)
}

func (h *FriendshipHandler) respondWithRequests(c *gin.Context, userID int, rows []models.Friendship) {
	usersByID, err := h.bulkOthers(c, userID, rows)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	type requestResponse struct {
		models.Friendship
		Username string `json:"username,omitempty"`
	}
	responses := make([]requestResponse, 0, len(rows))
	for _, f := range rows {
		responses = append(responses, requestResponse{
			Friendship: f,
			Username:   usersByID[f.Other(userID)].Username,
		})
	}
	c.JSON(http.StatusOK, gin.H{"requests": responses})
}

// ListFriends returns the caller's accepted friendships as a friend list.
func (h *FriendshipHandler) ListFriends(c *gin.Context) {
	userID := c.GetInt("userID")
	rows, err := h.friendRepo.ListFriends(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}

	usersByID, err := h.bulkOthers(c, userID, rows)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	type friendResponse struct {
		UserID       int    `json:"user_id"`
		Username     string `json:"username,omitempty"`
		AvatarURL    string `json:"avatar_url,omitempty"`
		FriendshipID int    `json:"friendship_id"`
	}
	responses := make([]friendResponse, 0, len(rows))
	for _, f := range rows {
		other := f.Other(userID)
		responses = append(responses, friendResponse{
			UserID:       other,
			Username:     usersByID[other].Username,
			AvatarURL:    usersByID[other].AvatarURL,
			FriendshipID: f.ID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"friends": responses})
}

func (h *FriendshipHandler) bulkOthers(c *gin.Context, userID int, rows []models.Friendship) (map[int]identity.User, error) {
	ids := make([]int, 0, len(rows))
	seen := map[int]struct{}{}
	for _, f := range rows {
		other := f.Other(userID)
		if _, ok := seen[other]; !ok {
			seen[other] = struct{}{}
			ids = append(ids, other)
		}
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	usersByID := make(map[int]identity.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}
	return usersByID, nil
}

func (h *FriendshipHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
