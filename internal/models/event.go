package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventStatusUpdate EventType = "status_update"
	EventStatusChange EventType = "status_change"
)

// ErrUnknownEventType is returned when decoding an event with an unrecognised tag.
var ErrUnknownEventType = errors.New("unknown event type")

// Payload is implemented only by the payload types in this package.
type Payload interface {
	EventType() EventType
}

// MessagePayload announces a newly appended message.
type MessagePayload struct {
	SenderID string  `json:"senderId"`
	Message  Message `json:"message"`
}

// TypingPayload reports a peer's typing indicator.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// StatusUpdatePayload reports a delivery status transition of a local message.
type StatusUpdatePayload struct {
	ConversationID string        `json:"conversationId,omitempty"`
	MessageID      string        `json:"messageId"`
	Status         MessageStatus `json:"status"`
}

// StatusChangePayload reports a presence change.
type StatusChangePayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (MessagePayload) EventType() EventType      { return EventMessage }
func (TypingPayload) EventType() EventType       { return EventTyping }
func (StatusUpdatePayload) EventType() EventType { return EventStatusUpdate }
func (StatusChangePayload) EventType() EventType { return EventStatusChange }

// Event is the unit delivered on the event bus. Type always matches Data.
type Event struct {
	Type EventType `json:"type"`
	Data Payload   `json:"data"`
}

// NewEvent wraps a payload, deriving the tag from its concrete type.
func NewEvent(payload Payload) Event {
	return Event{Type: payload.EventType(), Data: payload}
}

// ConversationID returns the conversation the event relates to, if any.
func (e Event) ConversationID() string {
	switch data := e.Data.(type) {
	case MessagePayload:
		return data.Message.ConversationID
	case TypingPayload:
		return data.UserID
	case StatusUpdatePayload:
		return data.ConversationID
	case StatusChangePayload:
		return data.UserID
	default:
		return ""
	}
}

type rawEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the payload according to the type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		payload Payload
		err     error
	)
	switch raw.Type {
	case EventMessage:
		var p MessagePayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case EventTyping:
		var p TypingPayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case EventStatusUpdate:
		var p StatusUpdatePayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	case EventStatusChange:
		var p StatusChangePayload
		err = json.Unmarshal(raw.Data, &p)
		payload = p
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, raw.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", raw.Type, err)
	}

	e.Type = raw.Type
	e.Data = payload
	return nil
}
