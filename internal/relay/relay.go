package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/service"
)

const (
	natsQueueGroup   = "gema-chat"
	publishTimeout   = 2 * time.Second
	lastMessageTTL   = 30 * time.Minute
	seenCapacity     = 1024
	reconnectBase    = time.Second
	reconnectCap     = 30 * time.Second
	reconnectRetries = 5
)

// Subscriber is the part of the event bus the relay listens on.
type Subscriber interface {
	Subscribe(listener realtime.Listener) func()
}

// Options configures a Relay. Either broker may be nil.
type Options struct {
	Redis       *redis.Client
	NATS        *nats.Conn
	ChannelBase string
	NodeID      string
	Logger      zerolog.Logger
	// Reconnect builds the backoff used when the redis subscription drops.
	Reconnect func() backoff.BackOff
}

type envelope struct {
	ID     string       `json:"id"`
	Source string       `json:"source"`
	Event  models.Event `json:"event"`
	SentAt time.Time    `json:"sent_at"`
}

// Relay mirrors chat activity between instances of the same user's session
// over Redis pub/sub and NATS. Local messages leave through Deliver; other
// bus events leave through the bus subscription. Remote events are applied
// through the inbound applier so they reach local listeners.
type Relay struct {
	inbound   *service.Inbound
	redis     *redis.Client
	nats      *nats.Conn
	channel   string
	subject   string
	cacheKey  string
	nodeID    string
	logger    zerolog.Logger
	reconnect func() backoff.BackOff

	mu        sync.Mutex
	connected bool
	listeners map[uint64]func(bool)
	nextID    uint64
	echoes    map[string]int
	seen      map[string]struct{}
	seenOrder []string
}

// New constructs a relay. Call Start to begin consuming remote events.
func New(inbound *service.Inbound, opts Options) *Relay {
	channel, subject, cacheKey := "", "", ""
	if base := strings.TrimSpace(opts.ChannelBase); base != "" {
		channel = base + ":chat:events"
		subject = strings.ReplaceAll(base, ":", ".") + ".chat.events"
		cacheKey = base + ":chat:last:"
	}

	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	reconnect := opts.Reconnect
	if reconnect == nil {
		reconnect = defaultReconnect
	}

	return &Relay{
		inbound:   inbound,
		redis:     opts.Redis,
		nats:      opts.NATS,
		channel:   channel,
		subject:   subject,
		cacheKey:  cacheKey,
		nodeID:    nodeID,
		logger:    opts.Logger.With().Str("component", "chat_relay").Str("node_id", nodeID).Logger(),
		reconnect: reconnect,
		listeners: make(map[uint64]func(bool)),
		echoes:    make(map[string]int),
		seen:      make(map[string]struct{}),
	}
}

func defaultReconnect() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectBase
	policy.Multiplier = 2
	policy.MaxInterval = reconnectCap
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	return backoff.WithMaxRetries(policy, reconnectRetries)
}

// NodeID identifies this instance in outgoing envelopes.
func (r *Relay) NodeID() string {
	return r.nodeID
}

func (r *Relay) redisEnabled() bool {
	return r.redis != nil && r.channel != ""
}

func (r *Relay) natsEnabled() bool {
	return r.nats != nil && r.subject != ""
}

// Start subscribes to the local bus and to every configured broker. The
// returned function detaches from the bus; broker consumers stop with ctx.
func (r *Relay) Start(ctx context.Context, bus Subscriber) func() {
	if r.redisEnabled() {
		go r.consumeRedis(ctx)
	}
	if r.natsEnabled() {
		r.watchNATS()
		go r.consumeNATS(ctx)
	}
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(r.Forward)
}

// Deliver publishes a locally sent message. Broker failures are transient so
// the chat service retries them.
func (r *Relay) Deliver(ctx context.Context, message models.Message) error {
	event := models.NewEvent(models.MessagePayload{SenderID: message.SenderID, Message: message})
	if err := r.publish(ctx, event); err != nil {
		return fmt.Errorf("%w: %w", service.ErrTransientDelivery, err)
	}
	r.cacheLastMessage(ctx, message)
	return nil
}

// Forward publishes a local bus event to the brokers. Events that were just
// applied from a remote envelope and local outgoing messages are skipped.
func (r *Relay) Forward(event models.Event) {
	if payload, ok := event.Data.(models.MessagePayload); ok && payload.Message.IsLocal() {
		return
	}
	if r.isEcho(echoKey(event)) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.publish(ctx, event); err != nil {
		r.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to relay chat event")
		return
	}
	if payload, ok := event.Data.(models.MessagePayload); ok {
		r.cacheLastMessage(ctx, payload.Message)
	}
}

func (r *Relay) publish(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(envelope{
		ID:     uuid.NewString(),
		Source: r.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if r.redisEnabled() {
		if err := r.redis.Publish(ctx, r.channel, payload).Err(); err != nil {
			return err
		}
		observability.RelayEvents().WithLabelValues("redis", "out").Inc()
	}
	if r.natsEnabled() {
		if err := r.nats.Publish(r.subject, payload); err != nil {
			return err
		}
		observability.RelayEvents().WithLabelValues("nats", "out").Inc()
	}
	return nil
}

func (r *Relay) consumeRedis(ctx context.Context) {
	for {
		pubsub, err := r.subscribeRedis(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("chat relay gave up on redis subscription")
			}
			r.setConnected(false)
			return
		}

		r.setConnected(true)
		err = r.receiveRedis(ctx, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			r.setConnected(false)
			return
		}

		r.logger.Warn().Err(err).Msg("chat relay redis subscription dropped")
		r.setConnected(false)
	}
}

func (r *Relay) subscribeRedis(ctx context.Context) (*redis.PubSub, error) {
	var pubsub *redis.PubSub
	operation := func() error {
		candidate := r.redis.Subscribe(ctx, r.channel)
		if _, err := candidate.Receive(ctx); err != nil {
			_ = candidate.Close()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		pubsub = candidate
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Dur("retry_in", wait).Msg("retrying chat relay redis subscription")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(r.reconnect(), ctx), notify); err != nil {
		return nil, err
	}
	return pubsub, nil
}

func (r *Relay) receiveRedis(ctx context.Context, pubsub *redis.PubSub) error {
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		observability.RelayEvents().WithLabelValues("redis", "in").Inc()
		r.handle([]byte(msg.Payload))
	}
}

func (r *Relay) consumeNATS(ctx context.Context) {
	// One queue group per node: every node must see every event.
	sub, err := r.nats.QueueSubscribe(r.subject, natsQueueGroup+"-"+r.nodeID, func(msg *nats.Msg) {
		observability.RelayEvents().WithLabelValues("nats", "in").Inc()
		r.handle(msg.Data)
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}
	if !r.redisEnabled() {
		r.setConnected(r.nats.IsConnected())
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
	}
}

func (r *Relay) watchNATS() {
	if r.redisEnabled() {
		return
	}
	r.nats.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		r.logger.Warn().Err(err).Msg("chat relay nats disconnected")
		r.setConnected(false)
	})
	r.nats.SetReconnectHandler(func(_ *nats.Conn) {
		r.setConnected(true)
	})
}

func (r *Relay) handle(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn().Err(err).Msg("invalid chat relay envelope")
		return
	}
	if env.Source == r.nodeID || !r.firstSighting(env.ID) {
		return
	}

	event := env.Event
	if payload, ok := event.Data.(models.MessagePayload); ok && payload.Message.ID == "" {
		payload.Message.ID = service.NewMessageID(payload.Message.ConversationID)
		event = models.NewEvent(payload)
	}

	key := echoKey(event)
	r.holdEcho(key)
	defer r.releaseEcho(key)

	switch data := event.Data.(type) {
	case models.MessagePayload:
		message := data.Message
		if message.SenderID == "" {
			message.SenderID = data.SenderID
		}
		r.inbound.ReceiveMessage("relay", message)
	case models.StatusChangePayload:
		r.inbound.SetPresence(data.UserID, data.IsOnline)
	case models.TypingPayload:
		r.inbound.Typing(data.UserID, data.IsTyping)
	case models.StatusUpdatePayload:
		r.inbound.StatusUpdate(data)
	}
}

// LastMessage returns the cached last message of a conversation, or nil when
// nothing was relayed for it within the cache TTL.
func (r *Relay) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	if !r.redisEnabled() {
		return nil, nil
	}

	raw, err := r.redis.Get(ctx, r.cacheKey+conversationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var message models.Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *Relay) cacheLastMessage(ctx context.Context, message models.Message) {
	if !r.redisEnabled() || message.ConversationID == "" {
		return
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, r.cacheKey+message.ConversationID, raw, lastMessageTTL).Err(); err != nil {
		r.logger.Warn().Err(err).Str("conversation_id", message.ConversationID).Msg("failed to cache last message")
	}
}

// AddConnectionListener registers fn for broker connection changes and returns
// a function that removes it.
func (r *Relay) AddConnectionListener(fn func(connected bool)) func() {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

// Connected reports whether the relay currently holds a broker subscription.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Relay) setConnected(connected bool) {
	r.mu.Lock()
	if r.connected == connected {
		r.mu.Unlock()
		return
	}
	r.connected = connected
	listeners := make([]func(bool), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	r.logger.Info().Bool("connected", connected).Msg("chat relay connection changed")
	for _, fn := range listeners {
		fn(connected)
	}
}

func (r *Relay) firstSighting(id string) bool {
	if id == "" {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.seenOrder = append(r.seenOrder, id)
	if len(r.seenOrder) > seenCapacity {
		delete(r.seen, r.seenOrder[0])
		r.seenOrder = r.seenOrder[1:]
	}
	return true
}

func (r *Relay) holdEcho(key string) {
	r.mu.Lock()
	r.echoes[key]++
	r.mu.Unlock()
}

func (r *Relay) releaseEcho(key string) {
	r.mu.Lock()
	if r.echoes[key] <= 1 {
		delete(r.echoes, key)
	} else {
		r.echoes[key]--
	}
	r.mu.Unlock()
}

func (r *Relay) isEcho(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.echoes[key] > 0
}

func echoKey(event models.Event) string {
	if payload, ok := event.Data.(models.MessagePayload); ok {
		return "message:" + payload.Message.ID
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return string(event.Type)
	}
	return string(raw)
}
