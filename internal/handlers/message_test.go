package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-service/internal/bus"
	"social-service/internal/identity"
	"social-service/internal/mocks"
	"social-service/internal/models"
	"social-service/internal/repositories"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats/:chat_id/messages", handler.GetMessages)
	r.POST("/chats/:chat_id/messages", handler.PostMessage)
	return r
}

func TestPostMessageBroadcastsAndNotifies(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	directory := new(mocks.DirectoryMock)
	notifier := new(mocks.NotifierMock)
	busRec := new(mocks.BusRecorder)
	handler := NewMessageHandler(chatRepo, messageRepo, directory, busRec, notifier, nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "hello").Return(models.Message{ID: 42, ChatID: 5, SenderID: 1, Content: "hello"}, nil).Once()
	chatRepo.On("Touch", mock.Anything, 5).Return(nil).Once()
	directory.On("User", mock.Anything, 1).Return(identity.User{ID: 1, Username: "alice"}, nil).Once()
	chatRepo.On("Participants", mock.Anything, 5).Return([]models.ChatParticipant{
		{ChatID: 5, UserID: 1},
		{ChatID: 5, UserID: 2},
		{ChatID: 5, UserID: 3, Muted: true},
	}, nil).Once()
	notifier.On("Notify", mock.Anything, 2, models.NotificationTypeMessage, "New Message", "New message from alice").
		Return(models.Notification{ID: 1}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	events := busRec.OnChannel(bus.ChatChannel(5))
	require.Len(t, events, 1)
	require.Equal(t, models.EventNewMessage, events[0].Name)
	var view models.MessageView
	require.NoError(t, json.Unmarshal(events[0].Payload, &view))
	require.Equal(t, 42, view.ID)
	require.Equal(t, "alice", view.SenderUsername)

	// The muted participant and the sender never get notified.
	notifier.AssertNumberOfCalls(t, "Notify", 1)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestPostMessageNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageEmptyContent(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageChatNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewMessageHandler(chatRepo, new(mocks.MessageRepositoryMock), new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessagesDecoratesSenders(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("ListMessages", mock.Anything, 5).Return([]models.Message{
		{ID: 1, ChatID: 5, SenderID: 1, Content: "hi"},
		{ID: 2, ChatID: 5, SenderID: 2, Content: "hey"},
	}, nil).Once()
	directory.On("BulkUsers", mock.Anything, []int{1, 2}).Return([]identity.User{
		{ID: 1, Username: "me"}, {ID: 2, Username: "bob"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	require.Equal(t, 1, resp.Messages[0].ID)
	require.Equal(t, "bob", resp.Messages[1].SenderUsername)
	chatRepo.AssertExpectations(t)
	directory.AssertExpectations(t)
}

func TestGetMessagesNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}
