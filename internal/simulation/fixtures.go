package simulation

import (
	"fmt"
	"time"

	"github.com/noah-isme/gema-chat/internal/models"
)

type fixture struct {
	thread   models.Conversation
	age      time.Duration
	preview  string
	messages int
}

var demoFixtures = []fixture{
	{
		thread:   models.Conversation{ID: "user1", DisplayName: "Sarah Johnson", AvatarURL: "https://randomuser.me/api/portraits/women/44.jpg", UnreadCount: 2, IsOnline: true, HasVideo: true},
		age:      25 * time.Minute,
		preview:  "Yes, I'm free tomorrow afternoon. Let's meet at 2pm.",
		messages: 15,
	},
	{
		thread:   models.Conversation{ID: "user2", DisplayName: "Mike Peterson", AvatarURL: "https://randomuser.me/api/portraits/men/32.jpg", IsOnline: true},
		age:      3 * time.Hour,
		preview:  "I'll send you the project files later today.",
		messages: 8,
	},
	{
		thread:   models.Conversation{ID: "user3", DisplayName: "Jessica Williams", AvatarURL: "https://randomuser.me/api/portraits/women/55.jpg", UnreadCount: 4, HasVideo: true},
		age:      24 * time.Hour,
		preview:  "Did you check the latest designs?",
		messages: 20,
	},
	{
		thread:   models.Conversation{ID: "user4", DisplayName: "David Chen", AvatarURL: "https://randomuser.me/api/portraits/men/67.jpg", HasVideo: true},
		age:      48 * time.Hour,
		preview:  "Looking forward to the conference next week!",
		messages: 5,
	},
	{
		thread:   models.Conversation{ID: "user5", DisplayName: "Emily Rodriguez", AvatarURL: "https://randomuser.me/api/portraits/women/28.jpg", UnreadCount: 1, IsOnline: true},
		age:      72 * time.Hour,
		preview:  "Thanks for helping with that task.",
		messages: 12,
	},
}

// DemoData returns the demo threads and their generated histories as of now.
// Each history ends with the thread's preview so LastMessage mirrors it.
func DemoData(gen *ContentGenerator, now time.Time) ([]models.Conversation, map[string][]models.Message) {
	threads := make([]models.Conversation, 0, len(demoFixtures))
	history := make(map[string][]models.Message, len(demoFixtures))

	for _, f := range demoFixtures {
		thread := f.thread
		messages := GenerateHistory(gen, thread.ID, f.messages, now.Add(-f.age))
		if n := len(messages); n > 0 {
			messages[n-1].SenderID = thread.ID
			messages[n-1].Content = f.preview
			thread.LastMessage = &models.LastMessage{
				Text:      f.preview,
				Timestamp: messages[n-1].Timestamp,
			}
		}
		threads = append(threads, thread)
		history[thread.ID] = messages
	}

	return threads, history
}

// GenerateHistory builds count messages one hour apart, the last one at end,
// alternating randomly between the local user and the peer.
func GenerateHistory(gen *ContentGenerator, conversationID string, count int, end time.Time) []models.Message {
	if count <= 0 {
		return []models.Message{}
	}

	start := end.UTC().Add(-time.Duration(count-1) * time.Hour)
	messages := make([]models.Message, 0, count)

	for i := 0; i < count; i++ {
		sender := conversationID
		content := gen.PeerMessage()
		if gen.Chance(0.5) {
			sender = models.LocalSenderID
			content = gen.LocalMessage()
		}

		messages = append(messages, models.Message{
			ID:             fmt.Sprintf("msg_%s_%d", conversationID, i),
			ConversationID: conversationID,
			SenderID:       sender,
			Content:        content,
			Timestamp:      start.Add(time.Duration(i) * time.Hour),
			Status:         gen.RandomStatus(),
		})
	}

	return messages
}
