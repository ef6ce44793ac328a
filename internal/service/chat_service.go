package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// EventBus is the subscribe/publish surface the chat service needs.
type EventBus interface {
	realtime.Publisher
	Subscribe(listener realtime.Listener) func()
}

// OperationResult is returned by bulk and destructive operations.
type OperationResult struct {
	Success bool `json:"success"`
}

// ChatService is the only surface UI code talks to. A transport adapter for a
// hosted backend implements the same interface.
type ChatService interface {
	GetMessageThreads(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	GetChatHistory(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (models.Message, error)
	MarkConversationAsRead(ctx context.Context, conversationID string) (bool, error)
	MarkAllConversationsAsRead(ctx context.Context) (OperationResult, error)
	DeleteConversation(ctx context.Context, conversationID string) (OperationResult, error)
	GetUnreadCount(ctx context.Context) (int, error)
	AddMessageListener(listener realtime.Listener) func()
	SetActiveConversation(conversationID string)
	ClearActiveConversation()
	Close()
}

// LastMessageLookup returns the newest message known for a conversation
// elsewhere, or nil when there is none.
type LastMessageLookup interface {
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
}

// ChatServiceOptions configures NewChatService. Zero values disable latency and
// fall back to local delivery.
type ChatServiceOptions struct {
	Latency   config.LatencyConfig
	Lifecycle config.LifecycleConfig
	Retry     config.RetryConfig
	Deliverer Deliverer
	// LastMessages fills in the preview of a thread with no local history.
	LastMessages LastMessageLookup
	Validator    *validator.Validate
	Logger    zerolog.Logger
}

type chatService struct {
	repo      repository.ConversationRepository
	bus       EventBus
	lifecycle *MessageLifecycle
	deliverer Deliverer
	lastSeen  LastMessageLookup
	latency   config.LatencyConfig
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewChatService wires the repository, bus and lifecycle engine into the façade.
func NewChatService(repo repository.ConversationRepository, bus EventBus, opts ChatServiceOptions) ChatService {
	validate := opts.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	logger := opts.Logger.With().Str("component", "chat_service").Logger()

	return &chatService{
		repo:      repo,
		bus:       bus,
		lifecycle: NewMessageLifecycle(repo, bus, opts.Lifecycle, opts.Logger),
		deliverer: newRetryingDeliverer(opts.Deliverer, opts.Retry, logger),
		lastSeen:  opts.LastMessages,
		latency:   opts.Latency,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat/internal/service/chat"),
		now:       time.Now,
	}
}

func (s *chatService) GetMessageThreads(ctx context.Context) ([]models.Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "chat.threads")
	defer span.End()

	if err := simulateLatency(ctx, s.latency.Threads); err != nil {
		return nil, err
	}
	return s.repo.ListThreads(), nil
}

// GetConversation is the strict lookup: an unknown id yields ErrNotFound.
func (s *chatService) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	conversationID = normalizeID(conversationID)
	ctx, span := s.tracer.Start(ctx, "chat.thread", trace.WithAttributes(attribute.String("chat.conversation_id", conversationID)))
	defer span.End()

	if err := simulateLatency(ctx, s.latency.Threads); err != nil {
		return models.Conversation{}, err
	}

	thread, ok := s.repo.Get(conversationID)
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	if thread.LastMessage == nil && s.lastSeen != nil {
		last, err := s.lastSeen.LastMessage(ctx, conversationID)
		if err != nil {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("last message lookup failed")
		} else if last != nil {
			thread.LastMessage = &models.LastMessage{Text: last.Content, Timestamp: last.Timestamp}
		}
	}
	return thread, nil
}

func (s *chatService) GetChatHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	conversationID = normalizeID(conversationID)
	ctx, span := s.tracer.Start(ctx, "chat.history", trace.WithAttributes(attribute.String("chat.conversation_id", conversationID)))
	defer span.End()

	if err := simulateLatency(ctx, s.latency.History); err != nil {
		return nil, err
	}

	if conversationID == "" {
		s.logger.Warn().Msg("chat history requested without conversation id")
		return []models.Message{}, nil
	}
	return s.repo.GetHistory(conversationID), nil
}

func (s *chatService) SendMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	conversationID = normalizeID(conversationID)
	if err := s.validator.Var(conversationID, "required,max=128"); err != nil {
		return models.Message{}, err
	}

	clean, err := s.sanitize(content)
	if err != nil {
		return models.Message{}, err
	}

	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.conversation_id", conversationID),
	))
	defer span.End()

	if err := simulateLatency(ctx, s.latency.Send); err != nil {
		return models.Message{}, err
	}

	message := models.Message{
		ID:             NewMessageID(conversationID),
		ConversationID: conversationID,
		SenderID:       models.LocalSenderID,
		Content:        clean,
		Timestamp:      s.now().UTC(),
		Status:         models.StatusSent,
	}

	if err := s.deliverer.Deliver(ctx, message); err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("chat message not delivered")
		return models.Message{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.repo.AppendMessage(conversationID, message)
	s.lifecycle.Track(message)
	observability.ChatMessages().WithLabelValues("local").Inc()

	return message, nil
}

func (s *chatService) MarkConversationAsRead(ctx context.Context, conversationID string) (bool, error) {
	conversationID = normalizeID(conversationID)
	ctx, span := s.tracer.Start(ctx, "chat.mark_read", trace.WithAttributes(attribute.String("chat.conversation_id", conversationID)))
	defer span.End()

	if err := simulateLatency(ctx, s.latency.MarkRead); err != nil {
		return false, err
	}
	s.repo.MarkRead(conversationID)
	return true, nil
}

func (s *chatService) MarkAllConversationsAsRead(ctx context.Context) (OperationResult, error) {
	ctx, span := s.tracer.Start(ctx, "chat.mark_all_read")
	defer span.End()

	if err := simulateLatency(ctx, s.latency.MarkAll); err != nil {
		return OperationResult{}, err
	}
	s.repo.MarkAllRead()
	return OperationResult{Success: true}, nil
}

func (s *chatService) DeleteConversation(ctx context.Context, conversationID string) (OperationResult, error) {
	conversationID = normalizeID(conversationID)
	ctx, span := s.tracer.Start(ctx, "chat.delete", trace.WithAttributes(attribute.String("chat.conversation_id", conversationID)))
	defer span.End()

	if err := simulateLatency(ctx, s.latency.Delete); err != nil {
		return OperationResult{}, err
	}

	s.lifecycle.CancelConversation(conversationID)
	if s.repo.DeleteConversation(conversationID) {
		s.logger.Info().Str("conversation_id", conversationID).Msg("conversation deleted")
	}
	return OperationResult{Success: true}, nil
}

func (s *chatService) GetUnreadCount(ctx context.Context) (int, error) {
	if err := simulateLatency(ctx, s.latency.Unread); err != nil {
		return 0, err
	}
	return s.repo.UnreadTotal(), nil
}

func (s *chatService) AddMessageListener(listener realtime.Listener) func() {
	return s.bus.Subscribe(listener)
}

func (s *chatService) SetActiveConversation(conversationID string) {
	s.repo.SetActive(normalizeID(conversationID))
}

func (s *chatService) ClearActiveConversation() {
	s.repo.ClearActive()
}

// Close cancels pending status transitions.
func (s *chatService) Close() {
	s.lifecycle.Stop()
}

// sanitize checks content against the markup policy. Accepted content is
// stored exactly as typed; anything the policy would alter is rejected so
// no part of the text is dropped without the caller knowing.
func (s *chatService) sanitize(content string) (string, error) {
	if content == "" {
		return "", nil
	}
	clean := html.UnescapeString(s.sanitizer.Sanitize(content))
	if clean != html.UnescapeString(content) {
		return "", ErrContentRejected
	}
	return content, nil
}

func normalizeID(conversationID string) string {
	return strings.TrimSpace(conversationID)
}
