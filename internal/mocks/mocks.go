package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetChat(ctx context.Context, userID int, otherUserID int) (models.Chat, bool, error) {
	args := m.Called(ctx, userID, otherUserID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) GetChatParticipants(ctx context.Context, chatID int) (int, int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) BulkUsers(ctx context.Context, ids []int, authorization string) (map[int]models.UserProfile, error) {
	args := m.Called(ctx, ids, authorization)
	var found map[int]models.UserProfile
	if val := args.Get(0); val != nil {
		found = val.(map[int]models.UserProfile)
	}
	return found, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID int, senderID int, payload models.MessagePayload, initialSeen bool) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, payload, initialSeen)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeen(ctx context.Context, chatID int, excludeSenderID int) ([]int, error) {
	args := m.Called(ctx, chatID, excludeSenderID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type ImageStoreMock struct {
	mock.Mock
}

func (m *ImageStoreMock) Save(ctx context.Context, r io.Reader) (models.Image, error) {
	args := m.Called(ctx, r)
	var img models.Image
	if val := args.Get(0); val != nil {
		img = val.(models.Image)
	}
	return img, args.Error(1)
}

var (
	_ repositories.ChatRepository    = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)
