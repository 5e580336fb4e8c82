package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID int, senderID int, payload models.MessagePayload, initialSeen bool) (models.Message, error)
	MarkSeen(ctx context.Context, chatID int, excludeSenderID int) ([]int, error)
	ListMessages(ctx context.Context, chatID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, text, image_url, image_public_id, message_type, seen, seen_at, created_at`

// CreateMessage stores a message and refreshes the chat's last-message
// preview in the same transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID int, senderID int, payload models.MessagePayload, initialSeen bool) (models.Message, error) {
	var imageURL, imagePublicID *string
	if payload.Image != nil {
		imageURL, imagePublicID = payload.Image.URL, payload.Image.PublicID
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `INSERT INTO messages (chat_id, sender_id, text, image_url, image_public_id, message_type, seen, seen_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $7 THEN NOW() END)
        RETURNING `+messageColumns,
		chatID, senderID, payload.Text, imageURL, imagePublicID, string(payload.Type()), initialSeen)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_text=$2, last_message_sender=$3, updated_at=NOW() WHERE id=$1`,
		chatID, payload.Preview(), senderID)
	if err != nil {
		return models.Message{}, fmt.Errorf("update last message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Message{}, ErrChatNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

// MarkSeen flips every unseen message in the chat not sent by excludeSenderID
// and returns the ids it changed. Concurrent callers never get the same id twice.
func (r *MessageRepo) MarkSeen(ctx context.Context, chatID int, excludeSenderID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `UPDATE messages SET seen = TRUE, seen_at = NOW()
        WHERE chat_id=$1 AND sender_id<>$2 AND seen = FALSE
        RETURNING id`, chatID, excludeSenderID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListMessages returns the chat history oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`, chatID)
	return msgs, err
}
