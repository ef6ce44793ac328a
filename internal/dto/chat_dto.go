package dto

import (
	"encoding/json"
	"strings"

	"github.com/noah-isme/gema-chat/internal/models"
)

// Socket command actions accepted on the chat websocket.
const (
	ActionSend   = "send"
	ActionRead   = "read"
	ActionActive = "active"
	ActionClear  = "clear"
)

// SendMessageRequest is the body of POST /threads/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content" validate:"max=4000"`
}

// SocketCommand is a client frame received over the chat websocket.
type SocketCommand struct {
	Action         string `json:"action" validate:"required,oneof=send read active clear"`
	ConversationID string `json:"conversationId" validate:"required_unless=Action clear,max=128"`
	Content        string `json:"content" validate:"max=4000"`
}

// UnmarshalJSON decodes a command frame. Non-string content becomes "".
func (c *SocketCommand) UnmarshalJSON(data []byte) error {
	type plain SocketCommand
	var aux struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	content, err := models.DecodeContent(aux.Content)
	if err != nil {
		return err
	}
	*c = SocketCommand(aux.plain)
	c.Content = content
	return nil
}

// Normalize trims identifiers in place.
func (c *SocketCommand) Normalize() {
	c.Action = strings.ToLower(strings.TrimSpace(c.Action))
	c.ConversationID = strings.TrimSpace(c.ConversationID)
}

// SocketError is pushed back to a websocket client when a command fails.
type SocketError struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// NewSocketError builds an error frame.
func NewSocketError(action, message string) SocketError {
	return SocketError{Type: "error", Action: action, Message: message}
}

// ConnectionFrame tells a websocket client whether cross-node relaying is up.
type ConnectionFrame struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// NewConnectionFrame builds a relay connection-state frame.
func NewConnectionFrame(connected bool) ConnectionFrame {
	return ConnectionFrame{Type: "connection", Connected: connected}
}

// ThreadListMeta accompanies the thread list.
type ThreadListMeta struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// NewThreadListMeta summarises threads for the list envelope.
func NewThreadListMeta(threads []models.Conversation) ThreadListMeta {
	meta := ThreadListMeta{Total: len(threads)}
	for _, thread := range threads {
		meta.Unread += thread.UnreadCount
	}
	return meta
}

// UnreadCountResponse is returned by GET /unread-count.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// MarkReadResponse is returned by POST /threads/:id/read.
type MarkReadResponse struct {
	ConversationID string `json:"conversationId"`
	Success        bool   `json:"success"`
}

// ActiveConversationResponse echoes the conversation currently on screen.
type ActiveConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

// SocketAck confirms a websocket command and carries its result.
type SocketAck struct {
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
}

// NewSocketAck builds an acknowledgement frame.
func NewSocketAck(action string, data interface{}) SocketAck {
	return SocketAck{Type: "ack", Action: action, Data: data}
}
