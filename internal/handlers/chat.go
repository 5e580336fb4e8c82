package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"chat-realtime/internal/media"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

// UserDirectory resolves profiles for the chat list. authorization is the
// caller's own header.
type UserDirectory interface {
	BulkUsers(ctx context.Context, ids []int, authorization string) (map[int]models.UserProfile, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chatRepo     repositories.ChatRepository
	messageRepo  repositories.MessageRepository
	participants ws.ParticipantStore
	hub          *ws.Hub
	users        UserDirectory
	delivery     *ws.DeliveryCoordinator
	seen         *ws.SeenPropagator
	images       media.ImageStore
	audit        *telemetry.AuditEmitter
	log          *zap.Logger
}

// NewChatHandler builds a ChatHandler. participants is usually the cached
// view of chatRepo; images may be nil to disable uploads. A nil users shows
// every counterpart as unknown.
func NewChatHandler(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	participants ws.ParticipantStore,
	hub *ws.Hub,
	users UserDirectory,
	images media.ImageStore,
	audit *telemetry.AuditEmitter,
	log *zap.Logger,
) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		participants: participants,
		hub:          hub,
		users:        users,
		delivery:     ws.NewDeliveryCoordinator(hub, participants, messageRepo, log),
		seen:         ws.NewSeenPropagator(hub, participants, messageRepo, log),
		images:       images,
		audit:        audit,
		log:          log,
	}
}

// Register mounts the chat routes on group.
func (h *ChatHandler) Register(group gin.IRoutes) {
	group.POST("/new", h.StartChat)
	group.GET("/all", h.ListChats)
	group.GET("/online", h.OnlineUsers)
	group.GET("/:chat_id/messages", h.GetChatMessages)
	group.POST("/:chat_id/messages", h.PostChatMessage)
}

// StartChat creates or returns the chat between the caller and another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		OtherUserID int `json:"other_user_id" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, created, err := h.chatRepo.CreateOrGetChat(c.Request.Context(), userID, req.OtherUserID)
	if errors.Is(err, repositories.ErrSameUser) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}
	if err != nil {
		h.log.Error("create chat", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.audit.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
			Level:  "INFO",
			Text:   "chat created",
			ChatID: chat.ID,
		})
	}
	c.JSON(status, chat)
}

// ListChats returns the caller's chats, most recent first, each with the
// other participant's profile.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("list chats", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	h.attachProfiles(c, chats)
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *ChatHandler) attachProfiles(c *gin.Context, chats []models.ChatSummary) {
	var found map[int]models.UserProfile
	if h.users != nil && len(chats) > 0 {
		ids := lo.Map(chats, func(s models.ChatSummary, _ int) int { return s.OtherUserID })
		var err error
		found, err = h.users.BulkUsers(c.Request.Context(), ids, c.GetHeader("Authorization"))
		if err != nil {
			h.log.Warn("load chat profiles", zap.Error(err))
		}
	}
	for i := range chats {
		profile, ok := found[chats[i].OtherUserID]
		if !ok {
			profile = models.UnknownUser(chats[i].OtherUserID)
		}
		chats[i].User = profile
	}
}

// OnlineUsers returns the ids of users with a live connection.
func (h *ChatHandler) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online_users": h.hub.Presence().OnlineUsers()})
}

// GetChatMessages marks the other side's messages as seen, then returns the
// full history.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	ids, err := h.seen.MarkSeen(c.Request.Context(), chatID, userID)
	if err != nil {
		h.writeChatError(c, err, "failed to update seen state")
		return
	}
	if len(ids) > 0 {
		h.audit.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
			Level:  "INFO",
			Text:   "messages seen",
			ChatID: chatID,
			Count:  len(ids),
		})
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		h.log.Error("list messages", zap.Int("chat_id", chatID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage stores a text or image message and delivers it.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	// Membership first so strangers cannot upload files.
	a, b, err := h.participants.GetChatParticipants(c.Request.Context(), chatID)
	if err != nil {
		h.writeChatError(c, err, "failed to load chat")
		return
	}
	if _, ok := models.OtherParticipant(a, b, userID); !ok {
		h.writeChatError(c, ws.ErrNotParticipant, "")
		return
	}

	payload, ok := h.bindPayload(c)
	if !ok {
		return
	}

	msg, outcome, err := h.delivery.Send(c.Request.Context(), ws.SendRequest{
		ChatID:       chatID,
		SenderID:     userID,
		OriginConnID: observability.ConnectionIDFromRequest(c.Request),
		Participants: [2]int{a, b},
		Payload:      payload,
	})
	if err != nil {
		h.writeChatError(c, err, "failed to send message")
		return
	}
	h.audit.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
		Level:  "INFO",
		Text:   "message sent",
		ChatID: chatID,
		Count:  outcome.Notified,
	})
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) bindPayload(c *gin.Context) (models.MessagePayload, bool) {
	var payload models.MessagePayload
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return payload, false
		}
		payload.Text = strings.TrimSpace(req.Text)
		return payload, true
	}

	payload.Text = strings.TrimSpace(c.PostForm("text"))
	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return payload, true
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
		return payload, false
	}
	if h.images == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image uploads are disabled"})
		return payload, false
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
		return payload, false
	}
	defer file.Close()

	img, err := h.images.Save(c.Request.Context(), file)
	switch {
	case errors.Is(err, media.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return payload, false
	case errors.Is(err, media.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return payload, false
	case err != nil:
		h.log.Error("save image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store image"})
		return payload, false
	}
	payload.Image = &img
	return payload, true
}

func (h *ChatHandler) writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, ws.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
	case errors.Is(err, ws.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func chatIDParam(c *gin.Context) (int, bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}
