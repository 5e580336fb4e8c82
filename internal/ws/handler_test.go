package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
)

type tokenTable map[string]int

func (t tokenTable) Verify(token string) (int, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return 0, errors.New("unknown token")
}

func startWSServer(t *testing.T, hub *Hub, chats *mocks.ChatRepositoryMock) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewWebSocketHandler(hub, chats, tokenTable{"alice": 1, "bob": 2}, HandlerConfig{
		WriteTimeout: time.Second,
		PongTimeout:  5 * time.Second,
	}, zap.NewNop())
	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips frames until one named name arrives.
func readUntil(t *testing.T, conn *websocket.Conn, name models.EventName) models.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f models.Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == name {
			return f
		}
	}
}

func TestHandshakeRequiresToken(t *testing.T) {
	hub := newTestHub()
	srv := startWSServer(t, hub, new(mocks.ChatRepositoryMock))

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=mallory"
	_, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Empty(t, hub.Presence().OnlineUsers())
}

func TestWebSocketSession(t *testing.T) {
	hub := newTestHub()
	chats := new(mocks.ChatRepositoryMock)
	chats.On("GetChatParticipants", mock.Anything, 10).Return(1, 2, nil)
	chats.On("GetChatParticipants", mock.Anything, 11).Return(3, 4, nil)
	srv := startWSServer(t, hub, chats)

	alice := dial(t, srv, "alice")
	connected := readUntil(t, alice, models.EventConnected)
	assert.Contains(t, string(connected.Data), `"user_id":1`)
	assert.True(t, hub.Presence().IsOnline(1))

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "joinChat", "data": map[string]int{"chat_id": 10}}))
	require.Eventually(t, func() bool { return hub.Rooms().HasUser(10, 1) }, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "joinChat", "data": map[string]int{"chat_id": 11}}))
	errFrame := readUntil(t, alice, models.EventError)
	assert.Contains(t, string(errFrame.Data), "not a participant")
	assert.False(t, hub.Rooms().HasUser(11, 1))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	readUntil(t, alice, models.EventError)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "dance", "data": map[string]int{"chat_id": 10}}))
	errFrame = readUntil(t, alice, models.EventError)
	assert.Contains(t, string(errFrame.Data), "unknown event")

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "typing", "data": map[string]int{"chat_id": 0}}))
	errFrame = readUntil(t, alice, models.EventError)
	assert.Contains(t, string(errFrame.Data), "invalid chat_id")

	bob := dial(t, srv, "bob")
	readUntil(t, bob, models.EventConnected)
	require.NoError(t, bob.WriteJSON(map[string]any{"event": "joinChat", "data": map[string]int{"chat_id": 10}}))
	require.Eventually(t, func() bool { return hub.Rooms().HasUser(10, 2) }, time.Second, 10*time.Millisecond)

	require.NoError(t, bob.WriteJSON(map[string]any{"event": "typing", "data": map[string]int{"chat_id": 10}}))
	typing := readUntil(t, alice, models.EventUserTyping)
	assert.JSONEq(t, `{"chat_id":10,"user_id":2}`, string(typing.Data))

	require.NoError(t, bob.WriteJSON(map[string]any{"event": "leaveChat", "data": map[string]int{"chat_id": 10}}))
	require.Eventually(t, func() bool { return !hub.Rooms().HasUser(10, 2) }, time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return !hub.Presence().IsOnline(2) }, 2*time.Second, 10*time.Millisecond)
	online := readUntil(t, alice, models.EventOnlineUsers)
	assert.JSONEq(t, `{"user_ids":[1]}`, string(online.Data))
}
