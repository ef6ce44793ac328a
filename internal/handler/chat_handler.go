package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

const (
	streamBufferSize = 64
	streamWriteWait  = 5 * time.Second
)

// ConnectionState reports the relay's broker connection and its changes.
type ConnectionState interface {
	Connected() bool
	AddConnectionListener(fn func(connected bool)) func()
}

// ChatHandler exposes the chat façade over REST and streams bus events over a websocket.
type ChatHandler struct {
	service    service.ChatService
	validator  *validator.Validate
	logger     zerolog.Logger
	sendLimit  fiber.Handler
	connection ConnectionState
}

// NewChatHandler creates a chat handler instance. sendLimit may be nil.
func NewChatHandler(service service.ChatService, validator *validator.Validate, sendLimit fiber.Handler, logger zerolog.Logger) *ChatHandler {
	if sendLimit == nil {
		sendLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &ChatHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
		sendLimit: sendLimit,
	}
}

// WithConnectionState makes the websocket stream report relay connection
// changes to its clients.
func (h *ChatHandler) WithConnectionState(state ConnectionState) *ChatHandler {
	h.connection = state
	return h
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", middleware.RequestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.stream))

	router.Get("/threads", h.threads)
	router.Get("/threads/:id", h.thread)
	router.Get("/threads/:id/messages", h.history)
	router.Post("/threads/:id/messages", h.sendLimit, h.send)
	router.Post("/threads/:id/read", h.markRead)
	router.Post("/threads/:id/active", h.setActive)
	router.Delete("/threads/:id", h.delete)
	router.Post("/read-all", h.markAllRead)
	router.Delete("/active", h.clearActive)
	router.Get("/unread-count", h.unreadCount)
}

func (h *ChatHandler) threads(c *fiber.Ctx) error {
	threads, err := h.service.GetMessageThreads(middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, err, "list threads")
	}
	return utils.OK(c, threads, "chat threads", dto.NewThreadListMeta(threads))
}

func (h *ChatHandler) thread(c *fiber.Ctx) error {
	thread, err := h.service.GetConversation(middleware.RequestContext(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "get thread")
	}
	return utils.SendSuccess(c, "chat thread", thread)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	messages, err := h.service.GetChatHistory(middleware.RequestContext(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "chat history")
	}
	return utils.SendSuccess(c, "chat history", messages)
}

func (h *ChatHandler) send(c *fiber.Ctx) error {
	var request dto.SendMessageRequest
	if err := c.BodyParser(&request); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(request); err != nil {
		return h.fail(c, err, "send message")
	}

	message, err := h.service.SendMessage(middleware.RequestContext(c), c.Params("id"), request.Content)
	if err != nil {
		return h.fail(c, err, "send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	ok, err := h.service.MarkConversationAsRead(middleware.RequestContext(c), conversationID)
	if err != nil {
		return h.fail(c, err, "mark read")
	}
	return utils.SendSuccess(c, "conversation marked as read", dto.MarkReadResponse{
		ConversationID: conversationID,
		Success:        ok,
	})
}

func (h *ChatHandler) markAllRead(c *fiber.Ctx) error {
	result, err := h.service.MarkAllConversationsAsRead(middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, err, "mark all read")
	}
	return utils.SendSuccess(c, "all conversations marked as read", result)
}

func (h *ChatHandler) delete(c *fiber.Ctx) error {
	result, err := h.service.DeleteConversation(middleware.RequestContext(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "delete conversation")
	}
	return utils.SendSuccess(c, "conversation deleted", result)
}

func (h *ChatHandler) unreadCount(c *fiber.Ctx) error {
	total, err := h.service.GetUnreadCount(middleware.RequestContext(c))
	if err != nil {
		return h.fail(c, err, "unread count")
	}
	return utils.SendSuccess(c, "unread count", dto.UnreadCountResponse{Unread: total})
}

func (h *ChatHandler) setActive(c *fiber.Ctx) error {
	conversationID := strings.TrimSpace(c.Params("id"))
	h.service.SetActiveConversation(conversationID)
	return utils.SendSuccess(c, "active conversation set", dto.ActiveConversationResponse{ConversationID: conversationID})
}

func (h *ChatHandler) clearActive(c *fiber.Ctx) error {
	h.service.ClearActiveConversation()
	return utils.SendSuccess(c, "active conversation cleared", dto.ActiveConversationResponse{})
}

func (h *ChatHandler) fail(c *fiber.Ctx, err error, operation string) error {
	status, message := errorStatus(err)
	logger := middleware.RequestLogger(h.logger, c)
	if status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Str("operation", operation).Msg("chat request failed")
	} else {
		logger.Debug().Err(err).Str("operation", operation).Msg("chat request rejected")
	}
	return utils.Fail(c, status, message, validationDetails(err))
}

// stream pushes every bus event to the client and accepts commands back. A
// slow client loses events rather than blocking the bus.
func (h *ChatHandler) stream(conn *websocket.Conn) {
	subject, _ := conn.Locals("user_id").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	logger := h.logger.With().Str("user_id", subject).Str("correlation_id", correlation).Logger()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	outbound := make(chan interface{}, streamBufferSize)
	push := func(frame interface{}) {
		select {
		case outbound <- frame:
		default:
			logger.Warn().Msg("chat stream buffer full, dropping frame")
		}
	}

	unsubscribe := h.service.AddMessageListener(func(event models.Event) {
		push(event)
	})
	defer unsubscribe()

	if h.connection != nil {
		push(dto.NewConnectionFrame(h.connection.Connected()))
		removeListener := h.connection.AddConnectionListener(func(connected bool) {
			push(dto.NewConnectionFrame(connected))
		})
		defer removeListener()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(frame); err != nil {
					logger.Debug().Err(err).Msg("chat stream write failed")
					cancel()
					return
				}
			}
		}
	}()

	logger.Info().Msg("chat stream connected")
	ownsActive := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if active, changed := h.command(ctx, raw, push); changed {
			ownsActive = active
		}
	}

	if ownsActive {
		h.service.ClearActiveConversation()
	}
	cancel()
	<-done
	logger.Info().Msg("chat stream disconnected")
}

// command applies one client frame. It returns whether an active conversation
// is now set and whether the frame touched the active conversation at all.
func (h *ChatHandler) command(ctx context.Context, raw []byte, push func(interface{})) (bool, bool) {
	var cmd dto.SocketCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		push(dto.NewSocketError("", "invalid frame"))
		return false, false
	}
	cmd.Normalize()
	if err := h.validator.Struct(cmd); err != nil {
		push(dto.NewSocketError(cmd.Action, "invalid command"))
		return false, false
	}

	switch cmd.Action {
	case dto.ActionSend:
		message, err := h.service.SendMessage(ctx, cmd.ConversationID, cmd.Content)
		if err != nil {
			_, reason := errorStatus(err)
			push(dto.NewSocketError(cmd.Action, reason))
			return false, false
		}
		push(dto.NewSocketAck(cmd.Action, message))
	case dto.ActionRead:
		ok, err := h.service.MarkConversationAsRead(ctx, cmd.ConversationID)
		if err != nil {
			_, reason := errorStatus(err)
			push(dto.NewSocketError(cmd.Action, reason))
			return false, false
		}
		push(dto.NewSocketAck(cmd.Action, dto.MarkReadResponse{ConversationID: cmd.ConversationID, Success: ok}))
	case dto.ActionActive:
		h.service.SetActiveConversation(cmd.ConversationID)
		push(dto.NewSocketAck(cmd.Action, dto.ActiveConversationResponse{ConversationID: cmd.ConversationID}))
		return true, true
	case dto.ActionClear:
		h.service.ClearActiveConversation()
		push(dto.NewSocketAck(cmd.Action, nil))
		return false, true
	}
	return false, false
}
