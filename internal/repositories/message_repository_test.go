package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var messageRowColumns = []string{"id", "chat_id", "sender_id", "text", "image_url", "image_public_id", "message_type", "seen", "seen_at", "created_at"}

func TestCreateMessageCommits(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(10, 1, "hi", nil, nil, "text", true).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(55, 10, 1, "hi", nil, nil, "text", true, now, now))
	mock.ExpectExec(`UPDATE chats SET last_message_text`).
		WithArgs(10, "hi", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := NewMessageRepo(db).CreateMessage(context.Background(), 10, 1, models.MessagePayload{Text: "hi"}, true)
	require.NoError(t, err)
	assert.Equal(t, 55, msg.ID)
	assert.True(t, msg.Seen)
	require.NotNil(t, msg.SeenAt)
	assert.Equal(t, models.MessageTypeText, msg.MessageType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageImagePreview(t *testing.T) {
	db, mock := newMockDB(t)
	url, publicID := "/uploads/a.png", "a.png"
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(10, 2, "", url, publicID, "image", false).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(56, 10, 2, "", url, publicID, "image", false, nil, now))
	mock.ExpectExec(`UPDATE chats SET last_message_text`).
		WithArgs(10, "📷 Image", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload := models.MessagePayload{Image: &models.Image{URL: &url, PublicID: &publicID}}
	msg, err := NewMessageRepo(db).CreateMessage(context.Background(), 10, 2, payload, false)
	require.NoError(t, err)
	assert.Nil(t, msg.SeenAt)
	require.NotNil(t, msg.Image.URL)
	assert.Equal(t, url, *msg.Image.URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageMissingChatRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(57, 99, 1, "hi", nil, nil, "text", false, nil, now))
	mock.ExpectExec(`UPDATE chats SET last_message_text`).
		WithArgs(99, "hi", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).CreateMessage(context.Background(), 99, 1, models.MessagePayload{Text: "hi"}, false)
	require.ErrorIs(t, err, ErrChatNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageInsertErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).CreateMessage(context.Background(), 10, 1, models.MessagePayload{Text: "hi"}, false)
	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenReturnsChangedIDsOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`UPDATE messages SET seen = TRUE`).
		WithArgs(10, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4).AddRow(5))
	mock.ExpectQuery(`UPDATE messages SET seen = TRUE`).
		WithArgs(10, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := repo.MarkSeen(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, ids)

	ids, err = repo.MarkSeen(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`UPDATE messages SET seen = TRUE`).WillReturnError(assert.AnError)

	_, err := NewMessageRepo(db).MarkSeen(context.Background(), 10, 1)
	require.ErrorIs(t, err, assert.AnError)
}

func TestGetChatParticipantsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT user1_id, user2_id FROM chats`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"user1_id", "user2_id"}))

	_, _, err := NewChatRepo(db).GetChatParticipants(context.Background(), 8)
	require.ErrorIs(t, err, ErrChatNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
