package models

import "time"

// Chat represents a private chat between exactly two users.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	User1ID   int       `db:"user1_id" json:"user1_id"`
	User2ID   int       `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	LastMessage `json:"last_message"`
}

// LastMessage is the denormalized preview kept on the chat row.
type LastMessage struct {
	Text     *string `db:"last_message_text" json:"text,omitempty"`
	SenderID *int    `db:"last_message_sender" json:"sender_id,omitempty"`
}

// OtherParticipant returns the member of the pair (a, b) that is not userID.
// ok is false when userID is neither.
func OtherParticipant(a, b, userID int) (other int, ok bool) {
	switch userID {
	case a:
		return b, true
	case b:
		return a, true
	}
	return 0, false
}

// ChatSummary provides API-friendly view of a chat for a user.
type ChatSummary struct {
	ChatID      int       `db:"id" json:"chat_id"`
	OtherUserID int       `db:"other_user_id" json:"other_user_id"`
	UnseenCount int       `db:"unseen_count" json:"unseen_count"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	User UserProfile `db:"-" json:"user"`

	LastMessage `json:"last_message"`
}
