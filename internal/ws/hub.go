package ws

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated connection")
	ErrNotParticipant  = errors.New("user is not a participant of this chat")
)

// Hub owns presence and room state and fans encoded frames out to
// connection queues.
type Hub struct {
	presence   *PresenceRegistry
	rooms      *RoomTracker
	sendBuffer int
	log        *zap.Logger

	// presenceMu orders onlineUsers snapshots so clients never see an older
	// list after a newer one.
	presenceMu sync.Mutex
}

// NewHub creates an empty hub with the given shard count and per-connection
// queue capacity.
func NewHub(log *zap.Logger, shards, sendBuffer int) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		presence:   NewPresenceRegistry(shards),
		rooms:      NewRoomTracker(shards),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

func (h *Hub) Presence() *PresenceRegistry { return h.presence }

func (h *Hub) Rooms() *RoomTracker { return h.rooms }

// Connect registers a new connection for an authenticated user. The first
// connection of a user broadcasts the refreshed online list to everyone.
func (h *Hub) Connect(userID int, info ConnInfo) (*Conn, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	c := newConn(userID, info, h.sendBuffer)
	first := h.presence.Register(c)

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	h.log.Debug("connection registered",
		zap.String("conn_id", c.ID),
		zap.Int("user_id", userID),
		zap.Bool("first", first))

	if first {
		h.broadcastOnlineUsers()
	}
	return c, nil
}

// Disconnect removes c from every room and from presence. Repeated calls are
// no-ops. The last connection of a user broadcasts the refreshed online list.
func (h *Hub) Disconnect(c *Conn) {
	if c == nil || !c.markClosed() {
		return
	}
	chats := h.rooms.RemoveConn(c)
	last := h.presence.Unregister(c)

	observability.DecWSActive("chat")
	observability.IncWSEvent("chat", "ws_disconnect")
	h.log.Debug("connection removed",
		zap.String("conn_id", c.ID),
		zap.Int("user_id", c.UserID),
		zap.Ints("chats", chats),
		zap.Bool("last", last))

	if last {
		h.broadcastOnlineUsers()
	}
}

// CloseAll disconnects every live connection and returns how many there
// were. Each writer sends a close frame once its queue is closed.
func (h *Hub) CloseAll() int {
	conns := h.presence.allConnections()
	for _, c := range conns {
		h.Disconnect(c)
	}
	return len(conns)
}

// JoinChat puts c into the chat's room. Authorization is the caller's job.
func (h *Hub) JoinChat(c *Conn, chatID int) bool {
	return h.rooms.Join(chatID, c)
}

func (h *Hub) LeaveChat(c *Conn, chatID int) bool {
	return h.rooms.Leave(chatID, c)
}

// Emit encodes e once and queues it on every connection. It never blocks and
// returns how many connections accepted the frame.
func (h *Hub) Emit(conns []*Conn, e models.Event) int {
	if len(conns) == 0 {
		return 0
	}
	frame, err := models.EncodeFrame(e)
	if err != nil {
		h.log.Error("encode frame", zap.String("event", string(e.EventName())), zap.Error(err))
		return 0
	}
	name := string(e.EventName())
	delivered := 0
	for _, c := range conns {
		if c.enqueue(frame) {
			delivered++
			observability.IncFrameEmitted(name)
			continue
		}
		observability.IncFrameDropped(name)
		h.log.Debug("frame dropped",
			zap.String("event", name),
			zap.String("conn_id", c.ID),
			zap.Int("user_id", c.UserID))
	}
	return delivered
}

// EmitTo queues e on a single connection.
func (h *Hub) EmitTo(c *Conn, e models.Event) bool {
	return h.Emit([]*Conn{c}, e) == 1
}

func (h *Hub) broadcastOnlineUsers() {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	online := h.presence.OnlineUsers()
	observability.SetOnlineUsers(len(online))
	h.Emit(h.presence.allConnections(), models.OnlineUsersEvent{UserIDs: online})
}
