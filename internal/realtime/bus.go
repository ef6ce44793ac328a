package realtime

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Listener receives every event published after it subscribes.
type Listener func(event models.Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(event models.Event)
}

// Bus fans events out to registered listeners.
//
// Publish delivers synchronously in the calling goroutine to a snapshot of the
// listeners registered at that moment, so a listener may subscribe, unsubscribe
// or publish from inside its callback. Publishes ordered by happens-before are
// delivered in that order; no order is promised between listeners.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
	log       zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[uint64]Listener),
		log:       logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers listener and returns a function removing exactly that
// registration. The returned function is safe to call more than once.
func (b *Bus) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = listener
	b.order = append(b.order, id)
	b.mu.Unlock()

	observability.ListenersActive().Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(id)
		})
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[id]; !ok {
		return
	}
	delete(b.listeners, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	observability.ListenersActive().Dec()
}

// Publish delivers event to every current listener. A panicking listener is
// logged and skipped.
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	ids := make([]uint64, len(b.order))
	copy(ids, b.order)
	b.mu.RUnlock()

	observability.EventsPublished().WithLabelValues(string(event.Type)).Inc()

	for _, id := range ids {
		b.mu.RLock()
		listener, ok := b.listeners[id]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		b.deliver(id, listener, event)
	}
}

// Len reports the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Bus) deliver(id uint64, listener Listener, event models.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			observability.ListenerPanics().Inc()
			b.log.Error().
				Uint64("listener_id", id).
				Str("event_type", string(event.Type)).
				Str("panic", fmt.Sprint(recovered)).
				Msg("chat listener failed")
		}
	}()
	listener(event)
}
