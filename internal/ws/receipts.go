package ws

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// SeenStore marks a chat's unseen messages as seen.
type SeenStore interface {
	MarkSeen(ctx context.Context, chatID int, excludeSenderID int) ([]int, error)
}

// SeenPropagator marks messages seen on behalf of a reader and tells the
// other participant which ones.
type SeenPropagator struct {
	hub          *Hub
	participants ParticipantStore
	store        SeenStore
	log          *zap.Logger
}

func NewSeenPropagator(hub *Hub, participants ParticipantStore, store SeenStore, log *zap.Logger) *SeenPropagator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SeenPropagator{hub: hub, participants: participants, store: store, log: log}
}

// MarkSeen returns the ids it flipped. The other participant's connections
// receive one batched messagesSeen, and nothing when no id changed.
func (p *SeenPropagator) MarkSeen(ctx context.Context, chatID, userID int) ([]int, error) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(ctx, "chat.mark_seen", trace.WithAttributes(
		attribute.Int("chat.id", chatID),
		attribute.Int("chat.reader_id", userID),
	))
	defer span.End()

	a, b, err := p.participants.GetChatParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	otherID, ok := models.OtherParticipant(a, b, userID)
	if !ok {
		return nil, ErrNotParticipant
	}

	ids, err := p.store.MarkSeen(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	span.SetAttributes(attribute.Int("chat.seen_count", len(ids)))
	observability.AddSeenReceipts(len(ids))
	n := p.hub.Emit(p.hub.presence.ConnectionsFor(otherID), models.MessagesSeenEvent{
		ChatID:     chatID,
		SeenBy:     userID,
		MessageIDs: ids,
	})
	p.log.Debug("messages seen",
		zap.Int("chat_id", chatID),
		zap.Int("seen_by", userID),
		zap.Int("count", len(ids)),
		zap.Int("notified", n))
	return ids, nil
}
