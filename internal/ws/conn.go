package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ConnInfo stores metadata about a websocket connection.
type ConnInfo struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn is one live client connection. The hub writes encoded frames into a
// bounded queue; a single writer goroutine drains it to the socket.
type Conn struct {
	ID     string
	UserID int
	Info   ConnInfo

	// mu guards rooms and closed. It is always taken before any shard lock.
	mu     sync.Mutex
	rooms  map[int]struct{}
	closed bool
	send   chan []byte
}

func newConn(userID int, info ConnInfo, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		Info:   info,
		rooms:  make(map[int]struct{}),
		send:   make(chan []byte, buffer),
	}
}

// Outbound is closed once the connection is disconnected.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Rooms returns the chats this connection has joined.
func (c *Conn) Rooms() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

// Closed reports whether the connection has been disconnected.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// enqueue never blocks. A full queue or a closed connection drops the frame.
func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// markClosed flips the closed flag and closes the queue exactly once.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}
