package connection

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of an inbound or outbound message.
type EventType string

const (
	EventPlanUpdate    EventType = "plan_update"
	EventPriceChange   EventType = "price_change"
	EventUsageUpdate   EventType = "usage_update"
	EventNFTUpdate     EventType = "nft_update"
	EventSystemMessage EventType = "system_message"
)

// EventTypes lists every known type in a stable order.
var EventTypes = []EventType{
	EventPlanUpdate,
	EventPriceChange,
	EventUsageUpdate,
	EventNFTUpdate,
	EventSystemMessage,
}

// Known reports whether t is one of EventTypes.
func (t EventType) Known() bool {
	switch t {
	case EventPlanUpdate, EventPriceChange, EventUsageUpdate, EventNFTUpdate, EventSystemMessage:
		return true
	}
	return false
}

// Message is the wire envelope. Received messages are shared between
// subscribers and must be treated as read-only, Payload included.
type Message struct {
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
}

// DecodeMessage parses one frame. A missing timestamp is set to now.
func DecodeMessage(data []byte, now time.Time) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	return msg, nil
}

func heartbeatMessage() Message {
	return Message{
		Type:    EventSystemMessage,
		Payload: map[string]any{"type": "heartbeat"},
	}
}
