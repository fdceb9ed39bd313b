package events

import (
	"encoding/json"
	"fmt"
)

// FrameType discriminates inbound room-socket frames. The set is closed:
// anything else is rejected by ParseFrame and ignored by the read loop.
type FrameType string

const (
	FrameMessage     FrameType = "message"
	FrameMessageRead FrameType = "message_read"
	FrameTyping      FrameType = "typing"
)

// InboundFrame is one JSON frame received on a room socket.
type InboundFrame struct {
	Type     FrameType `json:"type"`
	Message  string    `json:"message,omitempty"`
	IsFile   bool      `json:"is_file,omitempty"`
	IsTyping bool      `json:"is_typing,omitempty"`
}

// ParseFrame decodes and validates an inbound frame.
func ParseFrame(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameMessage:
		if f.Message == "" {
			return InboundFrame{}, fmt.Errorf("message frame without message")
		}
	case FrameMessageRead, FrameTyping:
	default:
		return InboundFrame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}
