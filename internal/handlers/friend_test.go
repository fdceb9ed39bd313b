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

	"messenger-service/internal/backplane"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/notify"
	"messenger-service/internal/repositories"
)

func setupFriendRouter(friends *mocks.FriendRepositoryMock, bp *backplane.Memory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewFriendHandler(friends, notify.NewRouter(bp), nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Set("username", "alice")
		c.Next()
	})
	r.POST("/friends/requests", handler.SendRequest)
	r.POST("/friends/requests/:request_id/accept", handler.AcceptRequest)
	r.DELETE("/friends/requests/:request_id", handler.CancelRequest)
	r.GET("/friends", handler.ListFriends)
	return r
}

func TestSendFriendRequestNotifiesTarget(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	targetSub, err := bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)

	friends.On("SendRequest", mock.Anything, 1, 2).
		Return(models.FriendLink{ID: 7, FromUserID: 1, ToUserID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(<-targetSub.C, &ev))
	require.Equal(t, "friend_request_received", ev["event"])
	require.Equal(t, float64(7), ev["request_id"])
	require.Equal(t, "alice", ev["from"])
	friends.AssertExpectations(t)
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	friends.On("SendRequest", mock.Anything, 1, 2).
		Return(models.FriendLink{}, repositories.ErrRequestExists).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptFriendRequestNotifiesSender(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	senderSub, err := bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)

	friends.On("AcceptRequest", mock.Anything, 7, 1).
		Return(models.FriendLink{ID: 7, FromUserID: 2, ToUserID: 1, IsAccepted: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests/7/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(<-senderSub.C, &ev))
	require.Equal(t, "friend_request_accepted", ev["event"])
	friends.AssertExpectations(t)
}

func TestAcceptFriendRequestNotFound(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	friends.On("AcceptRequest", mock.Anything, 9, 1).
		Return(models.FriendLink{}, repositories.ErrRequestNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests/9/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelFriendRequestNotifiesTarget(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	targetSub, err := bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)

	friends.On("DeleteRequest", mock.Anything, 7, 1).
		Return(models.FriendLink{ID: 7, FromUserID: 1, ToUserID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friends/requests/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(<-targetSub.C, &ev))
	require.Equal(t, "friend_request_cancelled", ev["event"])
}

func TestListFriends(t *testing.T) {
	friends := new(mocks.FriendRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	router := setupFriendRouter(friends, bp)

	friends.On("FriendIDs", mock.Anything, 1).Return([]int{2, 3}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/friends", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, []int{2, 3}, resp["friend_ids"])
}
