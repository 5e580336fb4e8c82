package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
)

func TestMarkSeenNotifiesOtherParticipant(t *testing.T) {
	hub := newTestHub()
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	p := NewSeenPropagator(hub, chats, messages, zap.NewNop())

	senderPhone := mustConnect(t, hub, 1)
	senderLaptop := mustConnect(t, hub, 1)
	reader := mustConnect(t, hub, 2)
	for _, c := range []*Conn{senderPhone, senderLaptop, reader} {
		drain(t, c)
	}

	chats.On("GetChatParticipants", mock.Anything, 10).Return(1, 2, nil).Twice()
	messages.On("MarkSeen", mock.Anything, 10, 2).Return([]int{7, 8, 9}, nil).Once()
	messages.On("MarkSeen", mock.Anything, 10, 2).Return([]int{}, nil).Once()

	ids, err := p.MarkSeen(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8, 9}, ids)

	for _, c := range []*Conn{senderPhone, senderLaptop} {
		seen := framesNamed(drain(t, c), models.EventMessagesSeen)
		require.Len(t, seen, 1, "one batched receipt")
		var receipt models.MessagesSeenEvent
		require.NoError(t, json.Unmarshal(seen[0].Data, &receipt))
		assert.Equal(t, models.MessagesSeenEvent{ChatID: 10, SeenBy: 2, MessageIDs: []int{7, 8, 9}}, receipt)
	}
	assert.Empty(t, drain(t, reader))

	ids, err = p.MarkSeen(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, drain(t, senderPhone), "nothing changed, nothing sent")

	messages.AssertExpectations(t)
}

func TestMarkSeenRejectsNonParticipant(t *testing.T) {
	hub := newTestHub()
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	p := NewSeenPropagator(hub, chats, messages, nil)

	chats.On("GetChatParticipants", mock.Anything, 10).Return(1, 2, nil).Once()

	_, err := p.MarkSeen(context.Background(), 10, 3)
	require.ErrorIs(t, err, ErrNotParticipant)
	messages.AssertNotCalled(t, "MarkSeen", mock.Anything, mock.Anything, mock.Anything)
}

func TestTypingRelayExcludesOrigin(t *testing.T) {
	hub := newTestHub()
	relay := NewTypingRelay(hub)
	typist := mustConnect(t, hub, 1)
	typistOther := mustConnect(t, hub, 1)
	peer := mustConnect(t, hub, 2)
	outsider := mustConnect(t, hub, 2)
	for _, c := range []*Conn{typist, typistOther, peer} {
		hub.JoinChat(c, 10)
	}
	for _, c := range []*Conn{typist, typistOther, peer, outsider} {
		drain(t, c)
	}

	assert.Equal(t, 2, relay.Typing(typist, 10))
	assert.Empty(t, drain(t, typist))
	assert.Empty(t, drain(t, outsider))
	frames := framesNamed(drain(t, peer), models.EventUserTyping)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"chat_id":10,"user_id":1}`, string(frames[0].Data))
	assert.Len(t, framesNamed(drain(t, typistOther), models.EventUserTyping), 1)

	assert.Equal(t, 2, relay.StopTyping(typist, 10))
	assert.Len(t, framesNamed(drain(t, peer), models.EventStopTyping), 1)
}

func TestTypingRelayRequiresMembership(t *testing.T) {
	hub := newTestHub()
	relay := NewTypingRelay(hub)
	outsider := mustConnect(t, hub, 3)
	peer := mustConnect(t, hub, 2)
	hub.JoinChat(peer, 10)
	drain(t, peer)

	assert.Equal(t, 0, relay.Typing(outsider, 10))
	assert.Empty(t, drain(t, peer))
}

func TestTypingThenStopArriveInOrder(t *testing.T) {
	hub := newTestHub()
	relay := NewTypingRelay(hub)
	typist := mustConnect(t, hub, 1)
	peer := mustConnect(t, hub, 2)
	hub.JoinChat(typist, 10)
	hub.JoinChat(peer, 10)
	drain(t, peer)

	relay.Typing(typist, 10)
	relay.StopTyping(typist, 10)

	frames := drain(t, peer)
	require.Len(t, frames, 2)
	assert.Equal(t, models.EventUserTyping, frames[0].Event)
	assert.Equal(t, models.EventStopTyping, frames[1].Event)
}
