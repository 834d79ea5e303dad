package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/probelight/qa-recorder/internal/models"
)

// Wire message types for the injected-script channel. The type tag is the
// only discriminator; no origin check is applied.
const (
	MsgReady = "qa-recorder-ready"
	MsgEvent = "qa-recorder-event"
)

// Message is the tagged union carried over the cross-frame channel.
type Message struct {
	Type    string                `json:"type"`
	Payload *models.RecordedEvent `json:"payload,omitempty"`
}

// ParseMessage validates a raw cross-frame payload. Anything that does not
// decode to a known message shape is rejected; the caller ignores the error
// beyond logging, a malformed payload must never crash the listener.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("undecodable frame message: %w", err)
	}
	switch msg.Type {
	case MsgReady:
		return Message{Type: MsgReady}, nil
	case MsgEvent:
		if msg.Payload == nil {
			return Message{}, fmt.Errorf("frame event message without payload")
		}
		if !models.ValidTypes[msg.Payload.EventType] {
			return Message{}, fmt.Errorf("frame event with unknown type %q", msg.Payload.EventType)
		}
		return msg, nil
	default:
		return Message{}, fmt.Errorf("unknown frame message type %q", msg.Type)
	}
}
