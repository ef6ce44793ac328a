package models

import "time"

// LocalSenderID identifies messages authored on this device.
const LocalSenderID = "me"

// LastMessage is the denormalized preview rendered in the thread list.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation represents a single peer thread.
type Conversation struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"name"`
	AvatarURL   string       `json:"avatar"`
	IsOnline    bool         `json:"isOnline"`
	UnreadCount int          `json:"unread"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	HasVideo    bool         `json:"hasVideo"`
}

// Clone returns a copy that shares no mutable state with the receiver.
func (c Conversation) Clone() Conversation {
	out := c
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return out
}
