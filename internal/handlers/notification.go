package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-service/internal/models"
	"social-service/internal/repositories"
)

// NotificationHandler serves the caller's notification list.
type NotificationHandler struct {
	repo repositories.NotificationRepository
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(repo repositories.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// List returns the caller's notifications, most recently updated first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetInt("userID")
	rows, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}

// MarkRead flags one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notification, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.repo.MarkRead(c.Request.Context(), notification.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not update notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes one of the caller's notifications.
func (h *NotificationHandler) Delete(c *gin.Context) {
	notification, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), notification.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

// owned loads the notification and enforces that it belongs to the caller.
func (h *NotificationHandler) owned(c *gin.Context) (models.Notification, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return models.Notification{}, false
	}

	row, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "notification not found"})
		return models.Notification{}, false
	}
	if row.UserID != c.GetInt("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your notification"})
		return models.Notification{}, false
	}
	return row, true
}
