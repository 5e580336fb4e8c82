package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
)

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), 8, 16)
}

func mustConnect(t *testing.T, h *Hub, userID int) *Conn {
	t.Helper()
	c, err := h.Connect(userID, ConnInfo{})
	require.NoError(t, err)
	return c
}

// drain returns every frame currently queued on c.
func drain(t *testing.T, c *Conn) []models.Frame {
	t.Helper()
	var out []models.Frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var f models.Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func framesNamed(frames []models.Frame, name models.EventName) []models.Frame {
	var out []models.Frame
	for _, f := range frames {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func TestConnectRejectsAnonymous(t *testing.T) {
	h := newTestHub()

	_, err := h.Connect(0, ConnInfo{})
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, h.Presence().OnlineUsers())
}

func TestOnlineUsersBroadcastOnTransitionsOnly(t *testing.T) {
	h := newTestHub()

	a1 := mustConnect(t, h, 1)
	first := framesNamed(drain(t, a1), models.EventOnlineUsers)
	require.Len(t, first, 1)
	var snap models.OnlineUsersEvent
	require.NoError(t, json.Unmarshal(first[0].Data, &snap))
	assert.Equal(t, []int{1}, snap.UserIDs)

	a2 := mustConnect(t, h, 1)
	assert.Empty(t, framesNamed(drain(t, a1), models.EventOnlineUsers), "second device is not a transition")
	assert.Empty(t, framesNamed(drain(t, a2), models.EventOnlineUsers))

	b := mustConnect(t, h, 2)
	for _, c := range []*Conn{a1, a2, b} {
		frames := framesNamed(drain(t, c), models.EventOnlineUsers)
		require.Len(t, frames, 1)
		require.NoError(t, json.Unmarshal(frames[0].Data, &snap))
		assert.Equal(t, []int{1, 2}, snap.UserIDs)
	}

	h.Disconnect(a1)
	assert.Empty(t, framesNamed(drain(t, b), models.EventOnlineUsers))
	assert.True(t, h.Presence().IsOnline(1))

	h.Disconnect(a2)
	frames := framesNamed(drain(t, b), models.EventOnlineUsers)
	require.Len(t, frames, 1)
	require.NoError(t, json.Unmarshal(frames[0].Data, &snap))
	assert.Equal(t, []int{2}, snap.UserIDs)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := mustConnect(t, h, 3)
	h.JoinChat(c, 10)

	h.Disconnect(c)
	h.Disconnect(c)

	assert.True(t, c.Closed())
	assert.False(t, h.Presence().IsOnline(3))
	assert.Empty(t, h.Rooms().MembersOf(10))
	drain(t, c)
	_, ok := <-c.Outbound()
	assert.False(t, ok, "queue is closed after disconnect")
}

func TestCloseAllEmptiesRegistries(t *testing.T) {
	h := newTestHub()
	conns := []*Conn{mustConnect(t, h, 1), mustConnect(t, h, 1), mustConnect(t, h, 2)}
	h.JoinChat(conns[0], 10)
	h.JoinChat(conns[2], 10)

	assert.Equal(t, 3, h.CloseAll())

	for _, c := range conns {
		assert.True(t, c.Closed())
		drain(t, c)
		_, ok := <-c.Outbound()
		assert.False(t, ok)
	}
	assert.Empty(t, h.Presence().OnlineUsers())
	assert.Empty(t, h.Presence().allConnections())
	assert.Empty(t, h.Rooms().MembersOf(10))
	assert.Equal(t, 0, h.CloseAll())
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	h := NewHub(zap.NewNop(), 1, 1)
	c := mustConnect(t, h, 1)
	drain(t, c)

	assert.Equal(t, 1, h.Emit([]*Conn{c}, models.ErrorEvent{Message: "one"}))
	assert.Equal(t, 0, h.Emit([]*Conn{c}, models.ErrorEvent{Message: "two"}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"message":"one"}`, string(frames[0].Data))
}

func TestEmitToClosedConnection(t *testing.T) {
	h := newTestHub()
	c := mustConnect(t, h, 1)
	h.Disconnect(c)

	assert.False(t, h.EmitTo(c, models.ErrorEvent{Message: "late"}))
}

func TestConcurrentChurnLeavesNoEntries(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := h.Connect(i%5+1, ConnInfo{})
			if err != nil {
				t.Error(err)
				return
			}
			for chat := 1; chat <= 4; chat++ {
				h.JoinChat(c, chat)
			}
			done := make(chan struct{})
			go func() {
				defer close(done)
				for chat := 1; chat <= 4; chat++ {
					h.JoinChat(c, chat)
					h.Emit(h.Rooms().MembersOf(chat), models.TypingEvent{ChatID: chat, UserID: c.UserID})
				}
			}()
			h.LeaveChat(c, 2)
			h.Disconnect(c)
			<-done
		}(i)
	}
	wg.Wait()

	assert.Empty(t, h.Presence().OnlineUsers())
	for chat := 1; chat <= 4; chat++ {
		assert.Empty(t, h.Rooms().MembersOf(chat), fmt.Sprintf("chat %d", chat))
	}
}
