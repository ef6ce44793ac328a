package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/models"
)

func newTestRepo() ConversationRepository {
	threads := []models.Conversation{
		{ID: "conv1", DisplayName: "Sarah", IsOnline: true},
		{ID: "conv2", DisplayName: "Mike", UnreadCount: 3},
		{ID: "conv3", DisplayName: "Jess"},
	}
	return NewMemoryConversationRepository(threads, nil)
}

func message(id, sender, content string) models.Message {
	return models.Message{
		ID:        id,
		SenderID:  sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Status:    models.StatusSent,
	}
}

func TestAppendPreservesCallOrder(t *testing.T) {
	repo := newTestRepo()

	for i := 0; i < 25; i++ {
		repo.AppendMessage("conv1", message(fmt.Sprintf("m%d", i), "conv1", fmt.Sprintf("body %d", i)))
	}

	history := repo.GetHistory("conv1")
	require.Len(t, history, 25)
	for i, msg := range history {
		require.Equal(t, fmt.Sprintf("m%d", i), msg.ID)
		require.Equal(t, "conv1", msg.ConversationID)
	}
}

func TestAppendUpdatesLastMessage(t *testing.T) {
	repo := newTestRepo()

	first := message("a", models.LocalSenderID, "first")
	second := message("b", "conv1", "second")
	second.Timestamp = first.Timestamp.Add(time.Second)

	require.True(t, repo.AppendMessage("conv1", first))
	require.True(t, repo.AppendMessage("conv1", second))

	thread, ok := repo.Get("conv1")
	require.True(t, ok)
	require.NotNil(t, thread.LastMessage)
	require.Equal(t, "second", thread.LastMessage.Text)
	require.True(t, second.Timestamp.Equal(thread.LastMessage.Timestamp))
}

func TestUnreadCountsPeerMessagesOnly(t *testing.T) {
	repo := newTestRepo()

	for i := 0; i < 7; i++ {
		repo.AppendMessage("conv3", message(fmt.Sprintf("p%d", i), "conv3", "hi"))
	}
	repo.AppendMessage("conv3", message("mine", models.LocalSenderID, "hello"))

	thread, _ := repo.Get("conv3")
	require.Equal(t, 7, thread.UnreadCount)

	repo.MarkRead("conv3")
	thread, _ = repo.Get("conv3")
	require.Equal(t, 0, thread.UnreadCount)
}

func TestActiveConversationDoesNotAccumulateUnread(t *testing.T) {
	repo := newTestRepo()
	repo.SetActive("conv3")

	repo.AppendMessage("conv3", message("p1", "conv3", "hi"))
	thread, _ := repo.Get("conv3")
	require.Equal(t, 0, thread.UnreadCount)

	repo.ClearActive()
	repo.AppendMessage("conv3", message("p2", "conv3", "still there?"))
	thread, _ = repo.Get("conv3")
	require.Equal(t, 1, thread.UnreadCount)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	repo := newTestRepo()

	repo.MarkRead("conv2")
	first, _ := repo.Get("conv2")
	repo.MarkRead("conv2")
	second, _ := repo.Get("conv2")

	require.Equal(t, 0, first.UnreadCount)
	require.Equal(t, 0, second.UnreadCount)
}

func TestMarkAllRead(t *testing.T) {
	repo := newTestRepo()
	repo.AppendMessage("conv1", message("p1", "conv1", "hi"))

	require.Equal(t, 4, repo.UnreadTotal())
	repo.MarkAllRead()
	require.Equal(t, 0, repo.UnreadTotal())
}

func TestListThreadsReturnsSnapshot(t *testing.T) {
	repo := newTestRepo()
	repo.AppendMessage("conv1", message("a", "conv1", "before"))

	snapshot := repo.ListThreads()
	require.Len(t, snapshot, 3)
	require.Equal(t, "before", snapshot[0].LastMessage.Text)

	repo.AppendMessage("conv1", message("b", "conv1", "after"))
	repo.SetOnline("conv1", false)

	require.Equal(t, "before", snapshot[0].LastMessage.Text)
	require.True(t, snapshot[0].IsOnline)
	require.Equal(t, 1, snapshot[0].UnreadCount)

	snapshot[1].UnreadCount = 99
	thread, _ := repo.Get("conv2")
	require.Equal(t, 3, thread.UnreadCount)
}

func TestHistoryIsCopied(t *testing.T) {
	repo := newTestRepo()
	repo.AppendMessage("conv1", message("a", "conv1", "original"))

	history := repo.GetHistory("conv1")
	history[0].Content = "tampered"

	require.Equal(t, "original", repo.GetHistory("conv1")[0].Content)
}

func TestUnknownConversationIsTolerated(t *testing.T) {
	repo := newTestRepo()

	history := repo.GetHistory("conv9")
	require.NotNil(t, history)
	require.Empty(t, history)

	require.NotPanics(t, func() {
		repo.MarkRead("conv9")
		repo.SetOnline("conv9", true)
	})
	require.False(t, repo.SetOnline("conv9", true))
	require.False(t, repo.DeleteConversation("conv9"))
	require.False(t, repo.AdvanceStatus("conv9", "m", models.StatusRead))

	_, ok := repo.Get("conv9")
	require.False(t, ok)
}

func TestAppendToUnknownConversationCreatesSequence(t *testing.T) {
	repo := newTestRepo()

	owned := repo.AppendMessage("fresh", message("m1", models.LocalSenderID, "hello"))
	require.False(t, owned)
	require.Len(t, repo.GetHistory("fresh"), 1)
	require.Len(t, repo.ListThreads(), 3)
}

func TestDeleteConversationIsIdempotent(t *testing.T) {
	repo := newTestRepo()
	repo.AppendMessage("conv1", message("a", "conv1", "hi"))

	require.True(t, repo.DeleteConversation("conv1"))
	afterOnce := repo.ListThreads()

	require.False(t, repo.DeleteConversation("conv1"))
	afterTwice := repo.ListThreads()

	require.Equal(t, afterOnce, afterTwice)
	require.Empty(t, repo.GetHistory("conv1"))
	require.False(t, repo.Exists("conv1"))
}

func TestAdvanceStatusIsMonotonic(t *testing.T) {
	repo := newTestRepo()
	repo.AppendMessage("conv1", message("m1", models.LocalSenderID, "hi"))

	require.True(t, repo.AdvanceStatus("conv1", "m1", models.StatusDelivered))
	require.False(t, repo.AdvanceStatus("conv1", "m1", models.StatusSent))
	require.False(t, repo.AdvanceStatus("conv1", "m1", models.StatusDelivered))
	require.True(t, repo.AdvanceStatus("conv1", "m1", models.StatusRead))
	require.False(t, repo.AdvanceStatus("conv1", "m1", models.StatusDelivered))

	require.Equal(t, models.StatusRead, repo.GetHistory("conv1")[0].Status)
}
