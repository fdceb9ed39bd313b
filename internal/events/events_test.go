package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger-service/internal/models"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    FrameType
	}{
		{"message", `{"type":"message","message":"hi"}`, false, FrameMessage},
		{"message without body", `{"type":"message"}`, true, ""},
		{"message_read", `{"type":"message_read"}`, false, FrameMessageRead},
		{"typing", `{"type":"typing","is_typing":true}`, false, FrameTyping},
		{"unknown type", `{"type":"presence"}`, true, ""},
		{"not json", `{{`, true, ""},
		{"empty", ``, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, frame.Type)
		})
	}
}

func TestChatMessageEncode(t *testing.T) {
	sender := 4
	msg := models.Message{
		ID:         11,
		RoomID:     3,
		SenderID:   &sender,
		SenderName: "alice",
		Content:    "https://cdn/x.png",
		IsFile:     true,
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := NewChatMessage(msg).Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "chat_message", decoded["type"])
	require.Equal(t, float64(11), decoded["message_id"])
	require.Equal(t, true, decoded["is_image"])
	require.Equal(t, "alice", decoded["sender"].(map[string]any)["username"])
}

func TestEncodeRejectsUnknownKinds(t *testing.T) {
	_, err := RoomEvent{Type: "mystery"}.Encode()
	require.Error(t, err)

	_, err = RoomEvent{Type: RoomChatActivity, Activity: "waving"}.Encode()
	require.Error(t, err)

	_, err = RoomEvent{Type: RoomGroupUpdate, Update: "renamed"}.Encode()
	require.Error(t, err)

	_, err = RoomEvent{Type: RoomMessageDeleted}.Encode()
	require.Error(t, err)

	_, err = NotifyEvent{Event: "mystery"}.Encode()
	require.Error(t, err)
}

func TestStatusChangeEncode(t *testing.T) {
	payload, err := NewStatusChange(5, "bob", true).Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "status_change", decoded["event"])
	require.Equal(t, float64(5), decoded["user_id"])
	require.Equal(t, true, decoded["is_online"])
}
