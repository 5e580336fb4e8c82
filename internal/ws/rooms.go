package ws

import "github.com/samber/lo"

// RoomTracker records which connections are currently viewing which chat.
// Entries are per connection, so one device leaving does not evict another.
type RoomTracker struct {
	rooms *shardedSets
}

// NewRoomTracker spreads chats over n shards.
func NewRoomTracker(n int) *RoomTracker {
	return &RoomTracker{rooms: newShardedSets(n)}
}

// Join is idempotent. It is a no-op on a closed connection, which keeps a
// racing disconnect from leaving a stale entry behind.
func (t *RoomTracker) Join(chatID int, c *Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[chatID] = struct{}{}
	t.rooms.add(chatID, c)
	return true
}

// Leave reports whether c was in the room.
func (t *RoomTracker) Leave(chatID int, c *Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[chatID]; !ok {
		return false
	}
	delete(c.rooms, chatID)
	removed, _ := t.rooms.remove(chatID, c.ID)
	return removed
}

// MembersOf returns a snapshot of the connections in the room.
func (t *RoomTracker) MembersOf(chatID int) []*Conn {
	return t.rooms.members(chatID)
}

func (t *RoomTracker) IsMember(chatID int, c *Conn) bool {
	return t.rooms.contains(chatID, c.ID)
}

// HasUser reports whether any of the user's connections is in the room.
func (t *RoomTracker) HasUser(chatID, userID int) bool {
	return t.rooms.anyMatch(chatID, func(c *Conn) bool { return c.UserID == userID })
}

// RemoveConn drops c from every room it joined and returns those chat ids.
func (t *RoomTracker) RemoveConn(c *Conn) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	chats := lo.Keys(c.rooms)
	for _, chatID := range chats {
		t.rooms.remove(chatID, c.ID)
	}
	c.rooms = make(map[int]struct{})
	return chats
}
