package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

const wsRoutingKey = "ws_events.chats"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int, error)
}

// HandlerConfig bounds socket IO.
type HandlerConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4096
	}
	return c
}

// WebSocketHandler upgrades authenticated clients and serves the realtime
// protocol for their connection.
type WebSocketHandler struct {
	hub          *Hub
	typing       *TypingRelay
	participants ParticipantStore
	verifier     TokenVerifier
	validate     *validator.Validate
	cfg          HandlerConfig
	log          *zap.Logger
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, participants ParticipantStore, verifier TokenVerifier, cfg HandlerConfig, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		hub:          hub,
		typing:       NewTypingRelay(hub),
		participants: participants,
		verifier:     verifier,
		validate:     validator.New(),
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates before upgrading, so unauthenticated clients never
// become connections.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.verifier.Verify(observability.BearerToken(c.Request))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn, err := h.hub.Connect(userID, info)
	if err != nil {
		_ = socket.Close()
		return
	}

	h.hub.EmitTo(conn, models.ConnectedEvent{
		ConnectionID: conn.ID,
		UserID:       userID,
		OnlineUsers:  h.hub.presence.OnlineUsers(),
	})
	h.publishLifecycle(conn, "ws_connect", "")

	go h.writeLoop(socket, conn)
	go h.readLoop(socket, conn)
}

func (h *WebSocketHandler) writeLoop(socket *websocket.Conn, conn *Conn) {
	ping := time.NewTicker(h.cfg.PongTimeout * 9 / 10)
	defer func() {
		ping.Stop()
		_ = socket.Close()
	}()
	for {
		select {
		case frame, ok := <-conn.Outbound():
			_ = socket.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("websocket write error", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}
		case <-ping.C:
			_ = socket.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) readLoop(socket *websocket.Conn, conn *Conn) {
	var closeReason string
	defer func() {
		h.hub.Disconnect(conn)
		h.publishLifecycle(conn, "ws_disconnect", closeReason)
		_ = socket.Close()
	}()

	socket.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
				h.publishLifecycle(conn, "ws_error", closeReason)
			}
			return
		}
		h.dispatch(conn, data)
	}
}

// dispatch handles one inbound frame. Bad frames are answered with an error
// event and never close the connection.
func (h *WebSocketHandler) dispatch(conn *Conn, data []byte) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.hub.EmitTo(conn, models.ErrorEvent{Message: "malformed frame"})
		return
	}

	switch frame.Event {
	case models.EventJoinChat, models.EventLeaveChat, models.EventTyping, models.EventStopTyping:
	default:
		h.hub.EmitTo(conn, models.ErrorEvent{Message: "unknown event"})
		return
	}

	var ref models.ChatRef
	if err := json.Unmarshal(frame.Data, &ref); err != nil || h.validate.Struct(ref) != nil {
		h.hub.EmitTo(conn, models.ErrorEvent{Message: "invalid chat_id"})
		return
	}
	observability.IncWSEvent("chat", string(frame.Event))

	switch frame.Event {
	case models.EventJoinChat:
		h.join(conn, ref.ChatID)
	case models.EventLeaveChat:
		h.hub.LeaveChat(conn, ref.ChatID)
	case models.EventTyping:
		h.typing.Typing(conn, ref.ChatID)
	case models.EventStopTyping:
		h.typing.StopTyping(conn, ref.ChatID)
	}
}

func (h *WebSocketHandler) join(conn *Conn, chatID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b, err := h.participants.GetChatParticipants(ctx, chatID)
	if err != nil {
		h.log.Debug("join lookup failed", zap.Int("chat_id", chatID), zap.Error(err))
		h.hub.EmitTo(conn, models.ErrorEvent{Message: "chat not found"})
		return
	}
	if _, ok := models.OtherParticipant(a, b, conn.UserID); !ok {
		h.hub.EmitTo(conn, models.ErrorEvent{Message: ErrNotParticipant.Error()})
		return
	}
	h.hub.JoinChat(conn, chatID)
}

func (h *WebSocketHandler) publishLifecycle(conn *Conn, event, reason string) {
	envelope := observability.NewWSEnvelope(event, conn.ID, conn.Info.ConnectedAt, reason, observability.WSIdentity{
		UserID:   conn.UserID,
		DeviceID: conn.Info.DeviceID,
		IP:       conn.Info.IP,
	})
	headers := observability.BuildHeaders(conn.Info.RequestID, conn.Info.TraceID)
	if err := observability.PublishEvent(context.Background(), wsRoutingKey, envelope, headers); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("publish ws lifecycle event", zap.String("event", event), zap.Error(err))
	}
}
