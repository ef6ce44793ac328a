package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/service"
)

const testChannelBase = "gema:test"

type node struct {
	relay   *Relay
	repo    repository.ConversationRepository
	bus     *realtime.Bus
	inbound *service.Inbound

	mu     sync.Mutex
	events []models.Event
}

func (n *node) record(event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *node) count(eventType models.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, event := range n.events {
		if event.Type == eventType {
			total++
		}
	}
	return total
}

func newNode(t *testing.T, ctx context.Context, client *redis.Client, nodeID string) *node {
	t.Helper()

	repo := repository.NewMemoryConversationRepository([]models.Conversation{
		{ID: "peer1", DisplayName: "Peer One", IsOnline: true},
	}, nil)
	bus := realtime.NewBus(zerolog.Nop())
	inbound := service.NewInbound(repo, bus, zerolog.Nop())

	n := &node{repo: repo, bus: bus, inbound: inbound}
	t.Cleanup(bus.Subscribe(n.record))

	n.relay = New(inbound, Options{
		Redis:       client,
		ChannelBase: testChannelBase,
		NodeID:      nodeID,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(n.relay.Start(ctx, bus))

	require.Eventually(t, n.relay.Connected, time.Second, 5*time.Millisecond)
	return n
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRelayMirrorsLocalMessageToOtherNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, client := newRedis(t)
	a := newNode(t, ctx, client, "node-a")
	b := newNode(t, ctx, client, "node-b")

	message := models.Message{
		ID:             "msg_peer1_1",
		ConversationID: "peer1",
		SenderID:       models.LocalSenderID,
		Content:        "hello from a",
		Timestamp:      time.Now().UTC(),
		Status:         models.StatusSent,
	}
	require.NoError(t, a.relay.Deliver(ctx, message))

	require.Eventually(t, func() bool {
		return len(b.repo.GetHistory("peer1")) == 1
	}, time.Second, 5*time.Millisecond)

	mirrored := b.repo.GetHistory("peer1")[0]
	require.Equal(t, message.ID, mirrored.ID)
	require.Equal(t, models.LocalSenderID, mirrored.SenderID)
	require.Equal(t, models.StatusSent, mirrored.Status)

	thread, _ := b.repo.Get("peer1")
	require.Zero(t, thread.UnreadCount)
	require.Empty(t, a.repo.GetHistory("peer1"))

	a.bus.Publish(models.NewEvent(models.StatusUpdatePayload{
		ConversationID: "peer1",
		MessageID:      message.ID,
		Status:         models.StatusDelivered,
	}))

	require.Eventually(t, func() bool {
		return b.repo.GetHistory("peer1")[0].Status == models.StatusDelivered
	}, time.Second, 5*time.Millisecond)
}

func TestRelayAppliesPresenceWithoutEcho(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, client := newRedis(t)
	a := newNode(t, ctx, client, "node-a")
	b := newNode(t, ctx, client, "node-b")

	tap := client.Subscribe(ctx, testChannelBase+":chat:events")
	defer tap.Close()
	_, err := tap.Receive(ctx)
	require.NoError(t, err)

	require.True(t, a.inbound.SetPresence("peer1", false))

	require.Eventually(t, func() bool {
		thread, _ := b.repo.Get("peer1")
		return !thread.IsOnline
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, b.count(models.EventStatusChange))

	envelopes := 0
	timeout := time.After(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-tap.Channel():
			envelopes++
		case <-timeout:
			done = true
		}
	}
	require.Equal(t, 1, envelopes)
	require.Equal(t, 1, a.count(models.EventStatusChange))
}

func TestRelayIgnoresOwnAndDuplicateEnvelopes(t *testing.T) {
	repo := repository.NewMemoryConversationRepository([]models.Conversation{{ID: "peer1"}}, nil)
	bus := realtime.NewBus(zerolog.Nop())
	r := New(service.NewInbound(repo, bus, zerolog.Nop()), Options{ChannelBase: testChannelBase, NodeID: "self", Logger: zerolog.Nop()})

	incoming := models.NewEvent(models.MessagePayload{
		SenderID: "peer1",
		Message:  models.Message{ConversationID: "peer1", Content: "hi"},
	})

	own, err := json.Marshal(envelope{ID: "1", Source: "self", Event: incoming})
	require.NoError(t, err)
	r.handle(own)
	require.Empty(t, repo.GetHistory("peer1"))

	remote, err := json.Marshal(envelope{ID: "2", Source: "other", Event: incoming})
	require.NoError(t, err)
	r.handle(remote)
	r.handle(remote)
	r.handle([]byte("not json"))

	history := repo.GetHistory("peer1")
	require.Len(t, history, 1)
	require.Equal(t, "peer1", history[0].SenderID)
	require.NotEmpty(t, history[0].ID)
	require.Equal(t, models.StatusDelivered, history[0].Status)

	thread, _ := repo.Get("peer1")
	require.Equal(t, 1, thread.UnreadCount)
}

func TestRelayCachesLastMessage(t *testing.T) {
	ctx := context.Background()
	server, client := newRedis(t)

	repo := repository.NewMemoryConversationRepository(nil, nil)
	bus := realtime.NewBus(zerolog.Nop())
	r := New(service.NewInbound(repo, bus, zerolog.Nop()), Options{Redis: client, ChannelBase: testChannelBase, Logger: zerolog.Nop()})

	missing, err := r.LastMessage(ctx, "peer1")
	require.NoError(t, err)
	require.Nil(t, missing)

	message := models.Message{ID: "m1", ConversationID: "peer1", SenderID: models.LocalSenderID, Content: "cached", Status: models.StatusSent}
	require.NoError(t, r.Deliver(ctx, message))

	cached, err := r.LastMessage(ctx, "peer1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, "cached", cached.Content)
	require.Equal(t, lastMessageTTL, server.TTL(testChannelBase+":chat:last:peer1"))

	server.FastForward(lastMessageTTL + time.Second)
	expired, err := r.LastMessage(ctx, "peer1")
	require.NoError(t, err)
	require.Nil(t, expired)
}

func TestRelayDeliverFailureIsTransient(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	repo := repository.NewMemoryConversationRepository(nil, nil)
	r := New(service.NewInbound(repo, realtime.NewBus(zerolog.Nop()), zerolog.Nop()), Options{Redis: client, ChannelBase: testChannelBase, Logger: zerolog.Nop()})

	err = r.Deliver(context.Background(), models.Message{ID: "m1", ConversationID: "peer1"})
	require.ErrorIs(t, err, service.ErrTransientDelivery)
}

func TestRelayConnectionListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, client := newRedis(t)

	repo := repository.NewMemoryConversationRepository(nil, nil)
	r := New(service.NewInbound(repo, realtime.NewBus(zerolog.Nop()), zerolog.Nop()), Options{Redis: client, ChannelBase: testChannelBase, Logger: zerolog.Nop()})

	var mu sync.Mutex
	var states []bool
	remove := r.AddConnectionListener(func(connected bool) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, connected)
	})
	ignored := 0
	removed := r.AddConnectionListener(func(bool) { ignored++ })
	removed()
	removed()

	r.Start(ctx, nil)
	require.Eventually(t, r.Connected, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !r.Connected() }, time.Second, 5*time.Millisecond)
	remove()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false}, states)
	require.Zero(t, ignored)
}

func TestRelayWithoutBrokersDeliversLocally(t *testing.T) {
	repo := repository.NewMemoryConversationRepository(nil, nil)
	r := New(service.NewInbound(repo, realtime.NewBus(zerolog.Nop()), zerolog.Nop()), Options{Logger: zerolog.Nop()})

	require.NoError(t, r.Deliver(context.Background(), models.Message{ID: "m1", ConversationID: "peer1"}))
	require.False(t, r.Connected())
	require.NotEmpty(t, r.NodeID())
}
