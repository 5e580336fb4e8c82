package models

import "time"

// MessageType distinguishes text from image messages.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Image references an uploaded picture.
type Image struct {
	URL      *string `db:"image_url" json:"url,omitempty"`
	PublicID *string `db:"image_public_id" json:"public_id,omitempty"`
}

// Message represents a chat message.
type Message struct {
	ID          int         `db:"id" json:"id"`
	ChatID      int         `db:"chat_id" json:"chat_id"`
	SenderID    int         `db:"sender_id" json:"sender_id"`
	Text        string      `db:"text" json:"text,omitempty"`
	MessageType MessageType `db:"message_type" json:"message_type"`
	Seen        bool        `db:"seen" json:"seen"`
	SeenAt      *time.Time  `db:"seen_at" json:"seen_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`

	Image `json:"image"`
}

// MessagePayload is what a sender supplies; the store derives the rest.
type MessagePayload struct {
	Text  string
	Image *Image
}

// Type reports the message type implied by the payload.
func (p MessagePayload) Type() MessageType {
	if p.Image != nil && p.Image.URL != nil {
		return MessageTypeImage
	}
	return MessageTypeText
}

// Preview is the text stored as the chat's last message.
func (p MessagePayload) Preview() string {
	if p.Type() == MessageTypeImage && p.Text == "" {
		return "📷 Image"
	}
	return p.Text
}

// Empty reports a payload with neither text nor image.
func (p MessagePayload) Empty() bool {
	return p.Text == "" && p.Type() != MessageTypeImage
}
