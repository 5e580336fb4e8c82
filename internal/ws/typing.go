package ws

import (
	"github.com/samber/lo"

	"chat-realtime/internal/models"
)

// TypingRelay forwards typing indicators to the other connections viewing
// the chat. Nothing is stored.
type TypingRelay struct {
	hub *Hub
}

func NewTypingRelay(hub *Hub) *TypingRelay {
	return &TypingRelay{hub: hub}
}

func (r *TypingRelay) Typing(c *Conn, chatID int) int {
	return r.relay(c, chatID, models.TypingEvent{ChatID: chatID, UserID: c.UserID})
}

func (r *TypingRelay) StopTyping(c *Conn, chatID int) int {
	return r.relay(c, chatID, models.StopTypingEvent{ChatID: chatID, UserID: c.UserID})
}

// relay only speaks for connections that joined the room themselves.
func (r *TypingRelay) relay(c *Conn, chatID int, e models.Event) int {
	if !r.hub.rooms.IsMember(chatID, c) {
		return 0
	}
	targets := lo.Reject(r.hub.rooms.MembersOf(chatID), func(m *Conn, _ int) bool { return m.ID == c.ID })
	return r.hub.Emit(targets, e)
}
