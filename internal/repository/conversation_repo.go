package repository

import (
	"sync"

	"github.com/noah-isme/gema-chat/internal/models"
)

// ConversationRepository keeps conversation threads and their message history.
// Unknown conversation ids are never an error: reads return empty results and
// writes are no-ops.
type ConversationRepository interface {
	ListThreads() []models.Conversation
	Get(conversationID string) (models.Conversation, bool)
	Exists(conversationID string) bool
	GetHistory(conversationID string) []models.Message
	AppendMessage(conversationID string, message models.Message) bool
	AdvanceStatus(conversationID, messageID string, status models.MessageStatus) bool
	MarkRead(conversationID string)
	MarkAllRead()
	DeleteConversation(conversationID string) bool
	SetOnline(conversationID string, online bool) bool
	SetActive(conversationID string)
	ClearActive()
	UnreadTotal() int
}

type memoryConversationRepository struct {
	mu      sync.RWMutex
	order   []string
	threads map[string]*models.Conversation
	history map[string][]models.Message
	active  string
}

// NewMemoryConversationRepository builds an in-memory repository from initial state.
// Thread order is preserved; history entries without a thread are kept as orphan
// sequences so they can still be read.
func NewMemoryConversationRepository(threads []models.Conversation, history map[string][]models.Message) ConversationRepository {
	repo := &memoryConversationRepository{
		order:   make([]string, 0, len(threads)),
		threads: make(map[string]*models.Conversation, len(threads)),
		history: make(map[string][]models.Message, len(history)),
	}

	for _, thread := range threads {
		if thread.ID == "" {
			continue
		}
		if _, exists := repo.threads[thread.ID]; !exists {
			repo.order = append(repo.order, thread.ID)
		}
		clone := thread.Clone()
		if clone.UnreadCount < 0 {
			clone.UnreadCount = 0
		}
		repo.threads[thread.ID] = &clone
	}

	for id, messages := range history {
		copied := make([]models.Message, len(messages))
		copy(copied, messages)
		repo.history[id] = copied
	}

	return repo
}

func (r *memoryConversationRepository) ListThreads() []models.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Conversation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.threads[id].Clone())
	}
	return out
}

func (r *memoryConversationRepository) Get(conversationID string) (models.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread, ok := r.threads[conversationID]
	if !ok {
		return models.Conversation{}, false
	}
	return thread.Clone(), true
}

func (r *memoryConversationRepository) Exists(conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.threads[conversationID]
	return ok
}

func (r *memoryConversationRepository) GetHistory(conversationID string) []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := r.history[conversationID]
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}

// AppendMessage reports whether a thread owns the conversation id.
func (r *memoryConversationRepository) AppendMessage(conversationID string, message models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	message.ConversationID = conversationID
	r.history[conversationID] = append(r.history[conversationID], message)

	thread, ok := r.threads[conversationID]
	if !ok {
		return false
	}

	thread.LastMessage = &models.LastMessage{
		Text:      message.Content,
		Timestamp: message.Timestamp,
	}
	if !message.IsLocal() && r.active != conversationID {
		thread.UnreadCount++
	}
	return true
}

// AdvanceStatus moves a message forward along sent -> delivered -> read.
// It returns false when the message is gone or the move would not advance.
func (r *memoryConversationRepository) AdvanceStatus(conversationID, messageID string, status models.MessageStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, ok := r.history[conversationID]
	if !ok {
		return false
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ID != messageID {
			continue
		}
		if !messages[i].Status.Advances(status) {
			return false
		}
		messages[i].Status = status
		return true
	}
	return false
}

func (r *memoryConversationRepository) MarkRead(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if thread, ok := r.threads[conversationID]; ok {
		thread.UnreadCount = 0
	}
}

func (r *memoryConversationRepository) MarkAllRead() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, thread := range r.threads {
		thread.UnreadCount = 0
	}
}

// DeleteConversation reports whether anything was removed.
func (r *memoryConversationRepository) DeleteConversation(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hadThread := r.threads[conversationID]
	_, hadHistory := r.history[conversationID]
	if !hadThread && !hadHistory {
		return false
	}

	delete(r.threads, conversationID)
	delete(r.history, conversationID)
	if hadThread {
		for i, id := range r.order {
			if id == conversationID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	if r.active == conversationID {
		r.active = ""
	}
	return true
}

func (r *memoryConversationRepository) SetOnline(conversationID string, online bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	thread, ok := r.threads[conversationID]
	if !ok {
		return false
	}
	thread.IsOnline = online
	return true
}

// SetActive marks the conversation currently on screen; its incoming messages
// do not count as unread.
func (r *memoryConversationRepository) SetActive(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = conversationID
}

func (r *memoryConversationRepository) ClearActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = ""
}

func (r *memoryConversationRepository) UnreadTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, thread := range r.threads {
		total += thread.UnreadCount
	}
	return total
}
