package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/backplane"
)

func TestHubJoinAndLeave(t *testing.T) {
	bp := backplane.NewMemory()
	defer bp.Close()
	hub := NewHub(bp)

	connA, _ := dialTestConn(t)
	connB, _ := dialTestConn(t)

	cl, err := hub.Join("room.1", connA, ConnInfo{ConnID: "a", UserID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, hub.LocalCount("room.1"))

	cl2, err := hub.Join("room.1", connB, ConnInfo{ConnID: "b", UserID: 2})
	require.NoError(t, err)
	require.Equal(t, 2, hub.LocalCount("room.1"))

	hub.Leave("room.1", cl)
	require.Equal(t, 1, hub.LocalCount("room.1"))
	hub.Leave("room.1", cl2)
	require.Equal(t, 0, hub.LocalCount("room.1"))
}

func TestHubSharesClientAcrossGroups(t *testing.T) {
	bp := backplane.NewMemory()
	defer bp.Close()
	hub := NewHub(bp)

	serverConn, clientConn := dialTestConn(t)
	roomCl, err := hub.Join("room.1", serverConn, ConnInfo{ConnID: "a", UserID: 1})
	require.NoError(t, err)
	userCl, err := hub.Join("user.1", serverConn, ConnInfo{ConnID: "a", UserID: 1})
	require.NoError(t, err)

	// One client per conn: both group pumps write through one lock.
	require.Same(t, roomCl, userCl)

	// Concurrent deliveries from both pumps land intact.
	const perGroup = 25
	var wg sync.WaitGroup
	wg.Add(2)
	for _, group := range []string{"room.1", "user.1"} {
		go func(group string) {
			defer wg.Done()
			for i := 0; i < perGroup; i++ {
				require.NoError(t, bp.Publish(context.Background(), group, []byte(`{"n":1}`)))
			}
		}(group)
	}
	wg.Wait()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2*perGroup; i++ {
		_, payload, err := clientConn.ReadMessage()
		require.NoError(t, err)
		require.JSONEq(t, `{"n":1}`, string(payload))
	}

	hub.Leave("room.1", roomCl)
	require.Equal(t, 1, hub.LocalCount("user.1"))
	hub.Leave("user.1", userCl)
	require.Equal(t, 0, hub.LocalCount("user.1"))
}

// dialTestConn upgrades a real websocket pair and hands the server side
// to the caller.
func dialTestConn(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return <-upgraded, client
}

func TestHubPumpDeliversBackplanePayloads(t *testing.T) {
	bp := backplane.NewMemory()
	defer bp.Close()
	hub := NewHub(bp)

	serverConn, clientConn := dialTestConn(t)
	cl, err := hub.Join("room.5", serverConn, ConnInfo{ConnID: "a", UserID: 1})
	require.NoError(t, err)
	defer hub.Leave("room.5", cl)

	require.NoError(t, bp.Publish(context.Background(), "room.5", []byte(`{"type":"chat_message"}`)))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"chat_message"}`, string(payload))
}

func TestHubCloseRoomUser(t *testing.T) {
	bp := backplane.NewMemory()
	defer bp.Close()
	hub := NewHub(bp)

	serverConn, clientConn := dialTestConn(t)
	_, err := hub.Join(backplane.RoomGroup(7), serverConn, ConnInfo{ConnID: "a", UserID: 4})
	require.NoError(t, err)

	hub.CloseRoomUser(7, 4)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = clientConn.ReadMessage()
	require.Error(t, err)
}

func TestGroupKind(t *testing.T) {
	require.Equal(t, "room", groupKind("room.12"))
	require.Equal(t, "user", groupKind("user.3"))
	require.Equal(t, "plain", groupKind("plain"))
}
