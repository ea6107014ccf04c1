package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
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

func setupFriendshipRouter(handler *FriendshipHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/friendships", handler.SendRequest)
	r.POST("/friendships/:id/accept", handler.Accept)
	r.POST("/friendships/:id/reject", handler.Reject)
	r.DELETE("/friendships/:id", handler.Cancel)
	r.GET("/friendships/incoming", handler.ListIncoming)
	r.GET("/friendships/outgoing", handler.ListOutgoing)
	r.GET("/friends", handler.ListFriends)
	r.DELETE("/friends/:user_id", handler.Unfriend)
	return r
}

func TestSendRequestSuccess(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	notifier := new(mocks.NotifierMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, directory, busRec, notifier, nil)
	router := setupFriendshipRouter(handler)

	directory.On("User", mock.Anything, 2).Return(identity.User{ID: 2, Username: "bob"}, nil).Once()
	friendRepo.On("FindActiveBetween", mock.Anything, 1, 2).Return(models.Friendship{}, repositories.ErrFriendshipNotFound).Once()
	friendRepo.On("CreateRequest", mock.Anything, 1, 2).Return(models.Friendship{ID: 9, SenderID: 1, ReceiverID: 2, Status: models.FriendshipPending}, nil).Once()
	directory.On("User", mock.Anything, 1).Return(identity.User{ID: 1, Username: "alice"}, nil).Once()
	notifier.On("Notify", mock.Anything, 2, models.NotificationTypeFriendRequest, "Friend Request", "alice sent you a friend request").
		Return(models.Notification{ID: 1}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	sent := busRec.OnChannel(bus.UserChannel(1))
	require.Len(t, sent, 1)
	require.Equal(t, models.EventFriendRequestSent, sent[0].Name)
	received := busRec.OnChannel(bus.UserChannel(2))
	require.Len(t, received, 1)
	require.Equal(t, models.EventFriendRequestReceived, received[0].Name)

	friendRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSendRequestToSelf(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	friendRepo.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendRequestAlreadyFriends(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	directory.On("User", mock.Anything, 2).Return(identity.User{ID: 2}, nil).Once()
	friendRepo.On("FindActiveBetween", mock.Anything, 1, 2).Return(models.Friendship{ID: 9, Status: models.FriendshipAccepted}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	friendRepo.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendRequestConstraintRaceConflict(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	directory.On("User", mock.Anything, 2).Return(identity.User{ID: 2}, nil).Once()
	friendRepo.On("FindActiveBetween", mock.Anything, 1, 2).Return(models.Friendship{}, repositories.ErrFriendshipNotFound).Once()
	friendRepo.On("CreateRequest", mock.Anything, 1, 2).Return(models.Friendship{}, repositories.ErrDuplicateFriendship).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	friendRepo.AssertExpectations(t)
}

func TestSendRequestUnknownReceiver(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	directory.On("User", mock.Anything, 99).Return(identity.User{}, identity.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	friendRepo.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptByReceiver(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	notifier := new(mocks.NotifierMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, directory, busRec, notifier, nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipPending}, nil).Once()
	friendRepo.On("UpdateStatus", mock.Anything, 9, models.FriendshipAccepted).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipAccepted}, nil).Once()
	directory.On("User", mock.Anything, 1).Return(identity.User{ID: 1, Username: "alice"}, nil).Once()
	notifier.On("Notify", mock.Anything, 2, models.NotificationTypeFriendAccept, "Friend Request Accepted", "alice accepted your friend request").
		Return(models.Notification{ID: 1}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships/9/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	for _, userID := range []int{1, 2} {
		events := busRec.OnChannel(bus.UserChannel(userID))
		require.Len(t, events, 1)
		require.Equal(t, models.EventFriendshipUpdated, events[0].Name)
	}
	friendRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestAcceptByNonReceiver(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 1, ReceiverID: 3, Status: models.FriendshipPending}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships/9/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	friendRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptNonPending(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipAccepted}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships/9/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	friendRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectNotifiesSender(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	notifier := new(mocks.NotifierMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, directory, busRec, notifier, nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipPending}, nil).Once()
	friendRepo.On("UpdateStatus", mock.Anything, 9, models.FriendshipRejected).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipRejected}, nil).Once()
	directory.On("User", mock.Anything, 1).Return(identity.User{ID: 1, Username: "alice"}, nil).Once()
	notifier.On("Notify", mock.Anything, 2, models.NotificationTypeFriendReject, "Friend Request Declined", "alice declined your friend request").
		Return(models.Notification{ID: 1}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friendships/9/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	notifier.AssertExpectations(t)
	friendRepo.AssertExpectations(t)
}

func TestCancelDoesNotNotifyReceiver(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	notifier := new(mocks.NotifierMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), busRec, notifier, nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 1, ReceiverID: 2, Status: models.FriendshipPending}, nil).Once()
	friendRepo.On("Delete", mock.Anything, 9).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friendships/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, userID := range []int{1, 2} {
		events := busRec.OnChannel(bus.UserChannel(userID))
		require.Len(t, events, 1)
		require.Equal(t, models.EventFriendshipRemoved, events[0].Name)
	}
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	friendRepo.AssertExpectations(t)
}

func TestCancelByNonSender(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("Get", mock.Anything, 9).Return(models.Friendship{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipPending}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friendships/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	friendRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestUnfriendSuccess(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), busRec, new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("DeleteAccepted", mock.Anything, 1, 2).Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friends/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, userID := range []int{1, 2} {
		events := busRec.OnChannel(bus.UserChannel(userID))
		require.Len(t, events, 1)
		require.Equal(t, models.EventFriendshipRemoved, events[0].Name)
	}
	friendRepo.AssertExpectations(t)
}

func TestUnfriendNotFriends(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	busRec := new(mocks.BusRecorder)
	handler := NewFriendshipHandler(friendRepo, new(mocks.DirectoryMock), busRec, new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("DeleteAccepted", mock.Anything, 1, 2).Return(0, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friends/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, busRec.Published)
	friendRepo.AssertExpectations(t)
}

func TestListFriendsDecorated(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("ListFriends", mock.Anything, 1).Return([]models.Friendship{
		{ID: 9, SenderID: 2, ReceiverID: 1, Status: models.FriendshipAccepted},
	}, nil).Once()
	directory.On("BulkUsers", mock.Anything, []int{2}).Return([]identity.User{{ID: 2, Username: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/friends", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Friends []struct {
			UserID   int    `json:"user_id"`
			Username string `json:"username"`
		} `json:"friends"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Friends, 1)
	require.Equal(t, 2, resp.Friends[0].UserID)
	require.Equal(t, "bob", resp.Friends[0].Username)
	friendRepo.AssertExpectations(t)
}

func TestListIncoming(t *testing.T) {
	friendRepo := new(mocks.FriendshipRepositoryMock)
	directory := new(mocks.DirectoryMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), new(mocks.NotifierMock), nil)
	router := setupFriendshipRouter(handler)

	friendRepo.On("ListIncoming", mock.Anything, 1).Return([]models.Friendship{
		{ID: 9, SenderID: 3, ReceiverID: 1, Status: models.FriendshipPending},
	}, nil).Once()
	directory.On("BulkUsers", mock.Anything, []int{3}).Return([]identity.User{{ID: 3, Username: "carol"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/friendships/incoming", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	friendRepo.AssertExpectations(t)
	directory.AssertExpectations(t)
}

// pairUniqueFriendshipRepo is an in-memory stand-in enforcing the same
// one-active-row-per-pair rule the partial unique index enforces in SQL,
// atomically under a mutex, so racing requests resolve the way they
// would against the database.
type pairUniqueFriendshipRepo struct {
	mocks.FriendshipRepositoryMock
	mu     sync.Mutex
	nextID int
	active map[string]models.Friendship
}

func friendPairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (r *pairUniqueFriendshipRepo) FindActiveBetween(ctx context.Context, userA, userB int) (models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.active[friendPairKey(userA, userB)]; ok {
		return f, nil
	}
	return models.Friendship{}, repositories.ErrFriendshipNotFound
}

func (r *pairUniqueFriendshipRepo) CreateRequest(ctx context.Context, senderID, receiverID int) (models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := friendPairKey(senderID, receiverID)
	if _, ok := r.active[key]; ok {
		return models.Friendship{}, repositories.ErrDuplicateFriendship
	}
	r.nextID++
	f := models.Friendship{ID: r.nextID, SenderID: senderID, ReceiverID: receiverID, Status: models.FriendshipPending}
	r.active[key] = f
	return f, nil
}

func TestSendRequestConcurrentDuplicatesOneWins(t *testing.T) {
	friendRepo := &pairUniqueFriendshipRepo{active: map[string]models.Friendship{}}
	directory := new(mocks.DirectoryMock)
	notifier := new(mocks.NotifierMock)
	handler := NewFriendshipHandler(friendRepo, directory, new(mocks.BusRecorder), notifier, nil)
	router := setupFriendshipRouter(handler)

	directory.On("User", mock.Anything, mock.Anything).Return(identity.User{ID: 2, Username: "bob"}, nil)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.Notification{ID: 1}, true, nil)

	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/friendships", bytes.NewBufferString(`{"receiver_id":2}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	var got []int
	for code := range codes {
		got = append(got, code)
	}
	sort.Ints(got)
	require.Equal(t, []int{http.StatusCreated, http.StatusConflict}, got,
		"exactly one of two racing requests must win")
	require.Len(t, friendRepo.active, 1)
}
