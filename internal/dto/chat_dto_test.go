package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/models"
)

func TestSocketCommandCoercesNonStringContent(t *testing.T) {
	var cmd SocketCommand
	require.NoError(t, json.Unmarshal([]byte(`{"action":" SEND ","conversationId":" user1 ","content":42}`), &cmd))
	cmd.Normalize()

	require.Equal(t, ActionSend, cmd.Action)
	require.Equal(t, "user1", cmd.ConversationID)
	require.Equal(t, "", cmd.Content)
}

func TestSocketCommandKeepsStringContent(t *testing.T) {
	var cmd SocketCommand
	require.NoError(t, json.Unmarshal([]byte(`{"action":"send","conversationId":"user1","content":"x<y and y>z"}`), &cmd))
	require.Equal(t, "x<y and y>z", cmd.Content)

	require.Error(t, json.Unmarshal([]byte(`{"action":`), &cmd))
}

func TestNewThreadListMeta(t *testing.T) {
	meta := NewThreadListMeta([]models.Conversation{
		{ID: "user1", UnreadCount: 2},
		{ID: "user2"},
		{ID: "user3", UnreadCount: 1},
	})
	require.Equal(t, ThreadListMeta{Total: 3, Unread: 3}, meta)
}
