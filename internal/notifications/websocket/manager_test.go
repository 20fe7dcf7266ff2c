package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, manager *Manager) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := manager.HandleConnection(w, r, r.URL.Query().Get("user")); err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestManagerDeliversToConnectedUser(t *testing.T) {
	manager := NewManager(nil, zap.NewNop())
	defer manager.Close()
	srv := newTestServer(t, manager)

	alice := dial(t, srv, "alice")
	status := readMessage(t, alice)
	assert.Equal(t, MessageTypeStatus, status.Type)
	assert.Equal(t, "connected", status.Data["status"])

	require.Eventually(t, func() bool { return manager.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, manager.IsConnected("bob"))
	assert.Equal(t, 1, manager.GetConnectionCount())

	sessions := manager.GetConnectionInfo("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, status.Data["connection_id"], sessions[0].ConnectionID)
	assert.Empty(t, manager.GetConnectionInfo("bob"))

	require.NoError(t, manager.SendToUser("alice", Message{
		Type: MessageTypeNotification,
		Data: map[string]interface{}{"kind": "turn_reached"},
	}))
	msg := readMessage(t, alice)
	assert.Equal(t, MessageTypeNotification, msg.Type)
	assert.Equal(t, "alice", msg.Target)
	assert.Equal(t, "turn_reached", msg.Data["kind"])

	assert.Error(t, manager.SendToUser("bob", Message{Type: MessageTypeNotification}))
}

func TestManagerPingUpdatesActivity(t *testing.T) {
	manager := NewManager(nil, zap.NewNop())
	defer manager.Close()
	srv := newTestServer(t, manager)

	conn := dial(t, srv, "alice")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return manager.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
	before := manager.GetConnectionInfo("alice")[0].LastActivity

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))

	assert.Eventually(t, func() bool {
		info := manager.GetConnectionInfo("alice")
		return len(info) == 1 && info[0].LastActivity.After(before)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerForgetsClosedConnections(t *testing.T) {
	manager := NewManager(nil, zap.NewNop())
	defer manager.Close()
	srv := newTestServer(t, manager)

	conn := dial(t, srv, "alice")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return manager.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return !manager.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, manager.GetConnectionCount())
}

func TestManagerRejectsUnknownOrigin(t *testing.T) {
	manager := NewManager([]string{"https://portal.example.com"}, zap.NewNop())
	defer manager.Close()
	srv := newTestServer(t, manager)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=alice"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, manager.GetConnectionCount())
}
