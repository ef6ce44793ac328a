package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/service"
)

// Driver generates synthetic presence, typing and incoming message traffic in
// place of a live backend. It runs alongside the chat service and is never
// called by it; leaving it unstarted disables simulation entirely.
type Driver struct {
	repo    repository.ConversationRepository
	inbound *service.Inbound
	gen     *ContentGenerator
	cfg     config.SimulationConfig
	logger  zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	typists map[string]*typist
}

// NewDriver constructs a simulation driver.
func NewDriver(repo repository.ConversationRepository, inbound *service.Inbound, gen *ContentGenerator, cfg config.SimulationConfig, logger zerolog.Logger) *Driver {
	if gen == nil {
		gen = NewContentGenerator(cfg.Seed)
	}
	return &Driver{
		repo:    repo,
		inbound: inbound,
		gen:     gen,
		cfg:     cfg,
		logger:  logger.With().Str("component", "chat_simulation").Logger(),
		typists: make(map[string]*typist),
	}
}

// Start runs the driver in the background until Stop or ctx cancellation.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		if err := d.Run(runCtx); err != nil {
			d.logger.Error().Err(err).Msg("chat simulation stopped")
		}
	}()
}

// Stop halts a driver started with Start and waits for its loops to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks until ctx is done. Pending typing indicators are cleared on exit.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info().
		Dur("presence_interval", d.cfg.PresenceInterval).
		Dur("incoming_interval", d.cfg.IncomingInterval).
		Dur("typing_interval", d.cfg.TypingInterval).
		Msg("chat simulation started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.every(ctx, d.cfg.PresenceInterval, func() {
			d.FlipPresence()
		})
	})
	g.Go(func() error {
		return d.every(ctx, d.cfg.IncomingInterval, func() {
			if d.gen.Chance(d.cfg.IncomingProbability) {
				d.InjectIncoming()
			}
		})
	})
	g.Go(func() error {
		return d.every(ctx, d.cfg.TypingInterval, func() {
			if d.gen.Chance(d.cfg.TypingProbability) {
				d.EmitTyping()
			}
		})
	})

	err := g.Wait()
	d.clearTyping()
	return err
}

func (d *Driver) every(ctx context.Context, interval time.Duration, tick func()) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}

// FlipPresence inverts the online flag of a random thread.
func (d *Driver) FlipPresence() (models.StatusChangePayload, bool) {
	thread, ok := d.pickThread()
	if !ok {
		return models.StatusChangePayload{}, false
	}

	online, ok := d.inbound.TogglePresence(thread.ID)
	if !ok {
		return models.StatusChangePayload{}, false
	}
	return models.StatusChangePayload{UserID: thread.ID, IsOnline: online}, true
}

// InjectIncoming delivers a synthetic peer message to a random thread.
func (d *Driver) InjectIncoming() (models.Message, bool) {
	thread, ok := d.pickThread()
	if !ok {
		return models.Message{}, false
	}

	message := d.inbound.ReceiveMessage("simulated", models.Message{
		ConversationID: thread.ID,
		SenderID:       thread.ID,
		Content:        d.gen.IncomingLine(),
		Status:         models.StatusDelivered,
	})
	return message, true
}

// EmitTyping starts a typing indicator on a random thread and schedules its end.
func (d *Driver) EmitTyping() (string, bool) {
	thread, ok := d.pickThread()
	if !ok {
		return "", false
	}

	userID := thread.ID
	wait := d.gen.Duration(d.cfg.TypingMinDuration, d.cfg.TypingMaxDuration)

	d.mu.Lock()
	if existing, typing := d.typists[userID]; typing && existing.timer.Stop() {
		existing.timer.Reset(wait)
		d.mu.Unlock()
		return userID, true
	}
	entry := &typist{}
	entry.timer = time.AfterFunc(wait, func() {
		d.stopTyping(userID, entry)
	})
	d.typists[userID] = entry
	d.mu.Unlock()

	d.inbound.Typing(userID, true)
	return userID, true
}

// typist is one running typing indicator. Whoever removes it from the map
// publishes its typing=false.
type typist struct {
	timer *time.Timer
}

func (d *Driver) stopTyping(userID string, entry *typist) {
	d.mu.Lock()
	if d.typists[userID] != entry {
		d.mu.Unlock()
		return
	}
	delete(d.typists, userID)
	d.mu.Unlock()

	d.inbound.Typing(userID, false)
}

func (d *Driver) clearTyping() {
	d.mu.Lock()
	pending := make([]string, 0, len(d.typists))
	for userID, entry := range d.typists {
		entry.timer.Stop()
		pending = append(pending, userID)
		delete(d.typists, userID)
	}
	d.mu.Unlock()

	for _, userID := range pending {
		d.inbound.Typing(userID, false)
	}
}

func (d *Driver) pickThread() (models.Conversation, bool) {
	threads := d.repo.ListThreads()
	if len(threads) == 0 {
		return models.Conversation{}, false
	}
	return threads[d.gen.Int(0, len(threads)-1)], true
}
