package ws

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

var ErrEmptyMessage = errors.New("message has neither text nor image")

// ParticipantStore resolves the two members of a chat.
type ParticipantStore interface {
	GetChatParticipants(ctx context.Context, chatID int) (int, int, error)
}

// MessageStore persists messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, chatID int, senderID int, payload models.MessagePayload, initialSeen bool) (models.Message, error)
}

// SendRequest is one outgoing message. OriginConnID names the sender's
// connection that issued the request; it gets no echo. An id that belongs to
// any other user is ignored. Participants carries the chat's pair when the
// caller already resolved it; the zero value means look it up.
type SendRequest struct {
	ChatID       int
	SenderID     int
	OriginConnID string
	Participants [2]int
	Payload      models.MessagePayload
}

// DeliveryOutcome summarizes what a send did on the realtime side.
type DeliveryOutcome struct {
	ReceiverInRoom bool
	Notified       int
	SeenReceipts   int
}

// DeliveryCoordinator persists a message and pushes it to every live
// connection that should see it.
type DeliveryCoordinator struct {
	hub          *Hub
	participants ParticipantStore
	messages     MessageStore
	log          *zap.Logger
}

func NewDeliveryCoordinator(hub *Hub, participants ParticipantStore, messages MessageStore, log *zap.Logger) *DeliveryCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliveryCoordinator{hub: hub, participants: participants, messages: messages, log: log}
}

// Send stores the message, seen when the receiver is viewing the chat right
// now, then notifies room members and both participants' connections. When
// the message was stored as seen, every sender connection also gets an
// immediate messagesSeen receipt.
func (d *DeliveryCoordinator) Send(ctx context.Context, req SendRequest) (models.Message, DeliveryOutcome, error) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int("chat.id", req.ChatID),
		attribute.Int("chat.sender_id", req.SenderID),
	))
	defer span.End()

	if req.Payload.Empty() {
		return models.Message{}, DeliveryOutcome{}, ErrEmptyMessage
	}

	a, b := req.Participants[0], req.Participants[1]
	if req.Participants == [2]int{} {
		var err error
		if a, b, err = d.participants.GetChatParticipants(ctx, req.ChatID); err != nil {
			return models.Message{}, DeliveryOutcome{}, err
		}
	}
	receiverID, ok := models.OtherParticipant(a, b, req.SenderID)
	if !ok {
		return models.Message{}, DeliveryOutcome{}, ErrNotParticipant
	}

	// A receiver that joins after this check still gets the frame below; the
	// message just stays unseen until their next history read.
	inRoom := d.hub.rooms.HasUser(req.ChatID, receiverID)

	msg, err := d.messages.CreateMessage(ctx, req.ChatID, req.SenderID, req.Payload, inRoom)
	if err != nil {
		return models.Message{}, DeliveryOutcome{}, err
	}
	observability.IncMessageSent(inRoom)

	targets := fanoutTargets(
		req.OriginConnID,
		req.SenderID,
		d.hub.rooms.MembersOf(req.ChatID),
		d.hub.presence.ConnectionsFor(receiverID),
		d.hub.presence.ConnectionsFor(req.SenderID),
	)
	outcome := DeliveryOutcome{ReceiverInRoom: inRoom}
	outcome.Notified = d.hub.Emit(targets, models.NewMessageEvent{Message: msg})

	if inRoom {
		receipt := models.MessagesSeenEvent{ChatID: req.ChatID, SeenBy: receiverID, MessageIDs: []int{msg.ID}}
		outcome.SeenReceipts = d.hub.Emit(d.hub.presence.ConnectionsFor(req.SenderID), receipt)
		observability.AddSeenReceipts(1)
	}

	span.SetAttributes(attribute.Bool("chat.receiver_in_room", inRoom), attribute.Int("chat.notified", outcome.Notified))
	d.log.Debug("message delivered",
		zap.Int("chat_id", req.ChatID),
		zap.Int("message_id", msg.ID),
		zap.Bool("receiver_in_room", inRoom),
		zap.Int("notified", outcome.Notified))
	return msg, outcome, nil
}

// fanoutTargets merges the groups and drops duplicates by connection id. The
// origin connection is removed only when it belongs to senderID.
func fanoutTargets(originConnID string, senderID int, groups ...[]*Conn) []*Conn {
	all := lo.UniqBy(lo.Flatten(groups), func(c *Conn) string { return c.ID })
	return lo.Reject(all, func(c *Conn, _ int) bool {
		return originConnID != "" && c.ID == originConnID && c.UserID == senderID
	})
}
