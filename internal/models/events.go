package models

import "encoding/json"

// EventName identifies a realtime frame.
type EventName string

// Outbound events.
const (
	EventNewMessage   EventName = "newMessage"
	EventMessagesSeen EventName = "messagesSeen"
	EventUserTyping   EventName = "userTyping"
	EventStopTyping   EventName = "stopTyping"
	EventOnlineUsers  EventName = "onlineUsers"
	EventConnected    EventName = "connected"
	EventError        EventName = "error"
)

// Inbound events. stopTyping is shared with the outbound set.
const (
	EventJoinChat  EventName = "joinChat"
	EventLeaveChat EventName = "leaveChat"
	EventTyping    EventName = "typing"
)

// Event is one of the closed set of outbound payloads.
type Event interface {
	EventName() EventName
}

// NewMessageEvent carries the full persisted message.
type NewMessageEvent struct {
	Message Message
}

func (NewMessageEvent) EventName() EventName { return EventNewMessage }

// MarshalJSON sends the message record itself as the payload.
func (e NewMessageEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

// MessagesSeenEvent tells a sender that the other participant saw messages.
type MessagesSeenEvent struct {
	ChatID     int   `json:"chat_id"`
	SeenBy     int   `json:"seen_by"`
	MessageIDs []int `json:"message_ids"`
}

func (MessagesSeenEvent) EventName() EventName { return EventMessagesSeen }

// TypingEvent is relayed to room members while a user types.
type TypingEvent struct {
	ChatID int `json:"chat_id"`
	UserID int `json:"user_id"`
}

func (TypingEvent) EventName() EventName { return EventUserTyping }

// StopTypingEvent is relayed when a user stops typing.
type StopTypingEvent struct {
	ChatID int `json:"chat_id"`
	UserID int `json:"user_id"`
}

func (StopTypingEvent) EventName() EventName { return EventStopTyping }

// OnlineUsersEvent is the presence snapshot broadcast on online/offline transitions.
type OnlineUsersEvent struct {
	UserIDs []int `json:"user_ids"`
}

func (OnlineUsersEvent) EventName() EventName { return EventOnlineUsers }

// ConnectedEvent greets a freshly registered connection.
type ConnectedEvent struct {
	ConnectionID string `json:"connection_id"`
	UserID       int    `json:"user_id"`
	OnlineUsers  []int  `json:"online_users"`
}

func (ConnectedEvent) EventName() EventName { return EventConnected }

// ErrorEvent reports a rejected inbound frame to its sender only.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) EventName() EventName { return EventError }

// Frame is the wire envelope for both directions.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame wraps an event in its envelope.
func EncodeFrame(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.EventName(), Data: data})
}

// ChatRef is the payload of every inbound event.
type ChatRef struct {
	ChatID int `json:"chat_id" validate:"required,gt=0"`
}
