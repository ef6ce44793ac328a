package models

import (
	"encoding/json"
	"time"
)

// MessageStatus tracks delivery progress of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses along sent -> delivered -> read. Unknown values rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the status is one of the known values.
func (s MessageStatus) Valid() bool {
	return s.Rank() > 0
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Message is immutable once created apart from its Status.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
}

// IsLocal reports whether the message was authored by the local user.
func (m Message) IsLocal() bool {
	return m.SenderID == LocalSenderID
}

// UnmarshalJSON decodes a message, coercing absent or non-string content to "".
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	content, err := DecodeContent(aux.Content)
	if err != nil {
		return err
	}
	*m = Message(aux.plain)
	m.Content = content
	return nil
}

// DecodeContent reads a raw JSON content field through ContentString.
func DecodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	return ContentString(value), nil
}

// ContentString coerces an arbitrary payload into message content.
// Nil and non-string values normalise to the empty string.
func ContentString(value interface{}) string {
	if v, ok := value.(string); ok {
		return v
	}
	return ""
}
