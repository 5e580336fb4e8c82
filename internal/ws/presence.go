package ws

import "sort"

// PresenceRegistry tracks which users have at least one live connection.
// A user is online exactly while their connection set is non-empty.
type PresenceRegistry struct {
	users *shardedSets
}

// NewPresenceRegistry spreads users over n shards.
func NewPresenceRegistry(n int) *PresenceRegistry {
	return &PresenceRegistry{users: newShardedSets(n)}
}

// Register adds c under its user and reports whether this was the user's
// first live connection. Closed connections are never registered.
func (p *PresenceRegistry) Register(c *Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return p.users.add(c.UserID, c)
}

// Unregister removes c and reports whether it was the user's last connection.
// Unknown connections are ignored.
func (p *PresenceRegistry) Unregister(c *Conn) bool {
	_, emptied := p.users.remove(c.UserID, c.ID)
	return emptied
}

func (p *PresenceRegistry) IsOnline(userID int) bool {
	return p.users.has(userID)
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (p *PresenceRegistry) ConnectionsFor(userID int) []*Conn {
	return p.users.members(userID)
}

// OnlineUsers returns the online user ids in ascending order.
func (p *PresenceRegistry) OnlineUsers() []int {
	ids := p.users.keys()
	sort.Ints(ids)
	if ids == nil {
		ids = []int{}
	}
	return ids
}

func (p *PresenceRegistry) allConnections() []*Conn {
	return p.users.all()
}
