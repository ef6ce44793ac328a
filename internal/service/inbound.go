package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// Inbound applies activity that originates off-device (a peer, a broker, or
// the simulation driver) to the repository and announces it on the bus.
type Inbound struct {
	repo   repository.ConversationRepository
	bus    realtime.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

// NewInbound constructs the inbound applier.
func NewInbound(repo repository.ConversationRepository, bus realtime.Publisher, logger zerolog.Logger) *Inbound {
	return &Inbound{
		repo:   repo,
		bus:    bus,
		logger: logger.With().Str("component", "chat_inbound").Logger(),
		now:    time.Now,
	}
}

// ReceiveMessage appends a peer message and publishes a message event. Missing
// fields are filled in: id, timestamp, sender (the conversation) and status.
func (i *Inbound) ReceiveMessage(origin string, message models.Message) models.Message {
	message.ConversationID = strings.TrimSpace(message.ConversationID)
	if message.SenderID == "" {
		message.SenderID = message.ConversationID
	}
	if message.ID == "" {
		message.ID = NewMessageID(message.ConversationID)
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = i.now().UTC()
	}
	if !message.Status.Valid() {
		message.Status = models.StatusDelivered
	}

	if !i.repo.AppendMessage(message.ConversationID, message) {
		i.logger.Debug().Str("conversation_id", message.ConversationID).Msg("incoming message for unknown thread")
	}
	if origin == "" {
		origin = "remote"
	}
	observability.ChatMessages().WithLabelValues(origin).Inc()

	i.bus.Publish(models.NewEvent(models.MessagePayload{
		SenderID: message.SenderID,
		Message:  message,
	}))
	return message
}

// SetPresence updates the online flag of a known thread and publishes a
// status_change. It reports whether the thread exists.
func (i *Inbound) SetPresence(userID string, online bool) bool {
	if !i.repo.SetOnline(userID, online) {
		return false
	}
	i.bus.Publish(models.NewEvent(models.StatusChangePayload{UserID: userID, IsOnline: online}))
	return true
}

// TogglePresence inverts the online flag of a known thread and returns the new state.
func (i *Inbound) TogglePresence(userID string) (bool, bool) {
	thread, ok := i.repo.Get(userID)
	if !ok {
		return false, false
	}
	online := !thread.IsOnline
	return online, i.SetPresence(userID, online)
}

// Typing publishes a typing indicator.
func (i *Inbound) Typing(userID string, isTyping bool) {
	i.bus.Publish(models.NewEvent(models.TypingPayload{UserID: userID, IsTyping: isTyping}))
}

// StatusUpdate applies a remote acknowledgement for a local message. Stale or
// unknown acknowledgements are dropped.
func (i *Inbound) StatusUpdate(update models.StatusUpdatePayload) bool {
	if !i.repo.AdvanceStatus(update.ConversationID, update.MessageID, update.Status) {
		return false
	}
	i.bus.Publish(models.NewEvent(update))
	return true
}

// NewMessageID returns a collision-free message identifier.
func NewMessageID(conversationID string) string {
	return "msg_" + conversationID + "_" + uuid.NewString()
}
