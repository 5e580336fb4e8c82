package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrSameUser     = errors.New("cannot create chat with self")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userID int, otherUserID int) (models.Chat, bool, error)
	GetChatParticipants(ctx context.Context, chatID int) (int, int, error)
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, last_message_text, last_message_sender, created_at, updated_at`

// CreateOrGetChat creates a chat between two users if it does not already exist.
// The boolean reports whether a new row was inserted.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userID int, otherUserID int) (models.Chat, bool, error) {
	if userID == otherUserID {
		return models.Chat{}, false, ErrSameUser
	}
	user1, user2 := orderedPair(userID, otherUserID)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
        RETURNING `+chatColumns, user1, user2)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	return chat, false, err
}

// GetChatParticipants returns both members of a chat.
func (r *ChatRepo) GetChatParticipants(ctx context.Context, chatID int) (int, int, error) {
	var row struct {
		User1ID int `db:"user1_id"`
		User2ID int `db:"user2_id"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT user1_id, user2_id FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrChatNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	return row.User1ID, row.User2ID, nil
}

// ListChats returns the user's chats, most recently active first, with the
// number of messages from the other side the user has not seen yet.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	query := `SELECT c.id,
            CASE WHEN c.user1_id=$1 THEN c.user2_id ELSE c.user1_id END AS other_user_id,
            c.last_message_text, c.last_message_sender, c.updated_at,
            (SELECT COUNT(*) FROM messages m
                WHERE m.chat_id = c.id AND m.sender_id <> $1 AND m.seen = FALSE) AS unseen_count
        FROM chats c
        WHERE c.user1_id=$1 OR c.user2_id=$1
        ORDER BY c.updated_at DESC`
	result := []models.ChatSummary{}
	if err := r.db.SelectContext(ctx, &result, query, userID); err != nil {
		return nil, err
	}
	return result, nil
}

func orderedPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}
