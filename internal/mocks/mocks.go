package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"social-service/internal/identity"
	"social-service/internal/models"
	"social-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, name *string, participantIDs []int) (models.Chat, error) {
	args := m.Called(ctx, name, participantIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, userA, userB int) (models.Chat, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) Participants(ctx context.Context, chatID int) ([]models.ChatParticipant, error) {
	args := m.Called(ctx, chatID)
	var participants []models.ChatParticipant
	if val := args.Get(0); val != nil {
		participants = val.([]models.ChatParticipant)
	}
	return participants, args.Error(1)
}

func (m *ChatRepositoryMock) AddParticipants(ctx context.Context, chatID int, userIDs []int) error {
	args := m.Called(ctx, chatID, userIDs)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveParticipant(ctx context.Context, chatID, userID int) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetMuted(ctx context.Context, chatID, userID int, muted bool) error {
	args := m.Called(ctx, chatID, userID, muted)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) Touch(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type FriendshipRepositoryMock struct {
	mock.Mock
}

func (m *FriendshipRepositoryMock) CreateRequest(ctx context.Context, senderID, receiverID int) (models.Friendship, error) {
	args := m.Called(ctx, senderID, receiverID)
	var friendship models.Friendship
	if val := args.Get(0); val != nil {
		friendship = val.(models.Friendship)
	}
	return friendship, args.Error(1)
}

func (m *FriendshipRepositoryMock) Get(ctx context.Context, id int) (models.Friendship, error) {
	args := m.Called(ctx, id)
	var friendship models.Friendship
	if val := args.Get(0); val != nil {
		friendship = val.(models.Friendship)
	}
	return friendship, args.Error(1)
}

func (m *FriendshipRepositoryMock) FindActiveBetween(ctx context.Context, userA, userB int) (models.Friendship, error) {
	args := m.Called(ctx, userA, userB)
	var friendship models.Friendship
	if val := args.Get(0); val != nil {
		friendship = val.(models.Friendship)
	}
	return friendship, args.Error(1)
}

func (m *FriendshipRepositoryMock) UpdateStatus(ctx context.Context, id int, status string) (models.Friendship, error) {
	args := m.Called(ctx, id, status)
	var friendship models.Friendship
	if val := args.Get(0); val != nil {
		friendship = val.(models.Friendship)
	}
	return friendship, args.Error(1)
}

func (m *FriendshipRepositoryMock) Delete(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *FriendshipRepositoryMock) DeleteAccepted(ctx context.Context, userID, otherID int) (int, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Int(0), args.Error(1)
}

func (m *FriendshipRepositoryMock) ListIncoming(ctx context.Context, userID int) ([]models.Friendship, error) {
	args := m.Called(ctx, userID)
	var rows []models.Friendship
	if val := args.Get(0); val != nil {
		rows = val.([]models.Friendship)
	}
	return rows, args.Error(1)
}

func (m *FriendshipRepositoryMock) ListOutgoing(ctx context.Context, userID int) ([]models.Friendship, error) {
	args := m.Called(ctx, userID)
	var rows []models.Friendship
	if val := args.Get(0); val != nil {
		rows = val.([]models.Friendship)
	}
	return rows, args.Error(1)
}

func (m *FriendshipRepositoryMock) ListFriends(ctx context.Context, userID int) ([]models.Friendship, error) {
	args := m.Called(ctx, userID)
	var rows []models.Friendship
	if val := args.Get(0); val != nil {
		rows = val.([]models.Friendship)
	}
	return rows, args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) CoalesceOrCreate(ctx context.Context, userID int, ntype, title, message, coalescedMessage string, window time.Duration) (models.Notification, bool, error) {
	args := m.Called(ctx, userID, ntype, title, message, coalescedMessage, window)
	var notification models.Notification
	if val := args.Get(0); val != nil {
		notification = val.(models.Notification)
	}
	return notification, args.Bool(1), args.Error(2)
}

func (m *NotificationRepositoryMock) Get(ctx context.Context, id int) (models.Notification, error) {
	args := m.Called(ctx, id)
	var notification models.Notification
	if val := args.Get(0); val != nil {
		notification = val.(models.Notification)
	}
	return notification, args.Error(1)
}

func (m *NotificationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	var rows []models.Notification
	if val := args.Get(0); val != nil {
		rows = val.([]models.Notification)
	}
	return rows, args.Error(1)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *NotificationRepositoryMock) Delete(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) ValidateToken(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}

func (m *DirectoryMock) User(ctx context.Context, id int) (identity.User, error) {
	args := m.Called(ctx, id)
	var user identity.User
	if val := args.Get(0); val != nil {
		user = val.(identity.User)
	}
	return user, args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []int) ([]identity.User, error) {
	args := m.Called(ctx, ids)
	var users []identity.User
	if val := args.Get(0); val != nil {
		users = val.([]identity.User)
	}
	return users, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, userID int, ntype, title, message string) (models.Notification, bool, error) {
	args := m.Called(ctx, userID, ntype, title, message)
	var notification models.Notification
	if val := args.Get(0); val != nil {
		notification = val.(models.Notification)
	}
	return notification, args.Bool(1), args.Error(2)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.FriendshipRepository = (*FriendshipRepositoryMock)(nil)
var _ repositories.NotificationRepository = (*NotificationRepositoryMock)(nil)
var _ identity.Directory = (*DirectoryMock)(nil)
var _ interface {
	Notify(context.Context, int, string, string, string) (models.Notification, bool, error)
} = (*NotifierMock)(nil)
