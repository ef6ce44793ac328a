package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// MessageLifecycle advances locally sent messages from sent to delivered to
// read on timers, publishing a status_update for every applied transition.
type MessageLifecycle struct {
	repo          repository.ConversationRepository
	bus           realtime.Publisher
	deliveryDelay time.Duration
	readDelay     time.Duration
	logger        zerolog.Logger

	mu             sync.Mutex
	idle           *sync.Cond
	tasks          map[string]*statusTask
	byConversation map[string]map[string]struct{}
	publishing     map[string]int
	stopped        bool
}

type statusTask struct {
	conversationID string
	messageID      string
	timer          *time.Timer
	cancelled      bool
}

// NewMessageLifecycle constructs the lifecycle engine.
func NewMessageLifecycle(repo repository.ConversationRepository, bus realtime.Publisher, cfg config.LifecycleConfig, logger zerolog.Logger) *MessageLifecycle {
	l := &MessageLifecycle{
		repo:           repo,
		bus:            bus,
		deliveryDelay:  cfg.DeliveryDelay,
		readDelay:      cfg.ReadDelay,
		logger:         logger.With().Str("component", "message_lifecycle").Logger(),
		tasks:          make(map[string]*statusTask),
		byConversation: make(map[string]map[string]struct{}),
		publishing:     make(map[string]int),
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Track schedules the delivery and read transitions for message.
func (l *MessageLifecycle) Track(message models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	if _, exists := l.tasks[message.ID]; exists {
		return
	}

	task := &statusTask{
		conversationID: message.ConversationID,
		messageID:      message.ID,
	}
	l.tasks[message.ID] = task
	if l.byConversation[task.conversationID] == nil {
		l.byConversation[task.conversationID] = make(map[string]struct{})
	}
	l.byConversation[task.conversationID][task.messageID] = struct{}{}

	task.timer = time.AfterFunc(l.deliveryDelay, func() {
		l.fire(task, models.StatusDelivered)
	})
}

// Pending reports the number of messages still awaiting a transition.
func (l *MessageLifecycle) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// CancelConversation stops every pending transition for the conversation and
// waits for a status_update already being published to reach every listener.
// No status_update for the conversation is published after it returns, so a
// listener must not call it synchronously for the conversation it is handling.
func (l *MessageLifecycle) CancelConversation(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for messageID := range l.byConversation[conversationID] {
		if task, ok := l.tasks[messageID]; ok {
			l.cancelLocked(task)
		}
	}
	for l.publishing[conversationID] > 0 {
		l.idle.Wait()
	}
}

// Stop cancels every pending transition and rejects new ones.
func (l *MessageLifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	for _, task := range l.tasks {
		l.cancelLocked(task)
	}
}

func (l *MessageLifecycle) cancelLocked(task *statusTask) {
	task.cancelled = true
	if task.timer != nil {
		task.timer.Stop()
	}
	l.forgetLocked(task)
}

func (l *MessageLifecycle) forgetLocked(task *statusTask) {
	delete(l.tasks, task.messageID)
	if ids, ok := l.byConversation[task.conversationID]; ok {
		delete(ids, task.messageID)
		if len(ids) == 0 {
			delete(l.byConversation, task.conversationID)
		}
	}
}

func (l *MessageLifecycle) fire(task *statusTask, status models.MessageStatus) {
	l.mu.Lock()
	if task.cancelled {
		l.mu.Unlock()
		return
	}

	if !l.repo.AdvanceStatus(task.conversationID, task.messageID, status) {
		l.forgetLocked(task)
		l.mu.Unlock()
		l.logger.Debug().
			Str("conversation_id", task.conversationID).
			Str("message_id", task.messageID).
			Str("status", string(status)).
			Msg("skipping status transition for missing message")
		return
	}

	if status == models.StatusDelivered {
		task.timer = time.AfterFunc(l.readDelay, func() {
			l.fire(task, models.StatusRead)
		})
	} else {
		l.forgetLocked(task)
	}
	l.publishing[task.conversationID]++
	l.mu.Unlock()

	defer l.published(task.conversationID)

	observability.StatusTransitions().WithLabelValues(string(status)).Inc()
	l.bus.Publish(models.NewEvent(models.StatusUpdatePayload{
		ConversationID: task.conversationID,
		MessageID:      task.messageID,
		Status:         status,
	}))
}

func (l *MessageLifecycle) published(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.publishing[conversationID]--
	if l.publishing[conversationID] <= 0 {
		delete(l.publishing, conversationID)
		l.idle.Broadcast()
	}
}
