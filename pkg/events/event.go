package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// TurnCompleted carries per-turn usage for downstream accounting.
const TurnCompleted = "turn_completed"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "persist_turn").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the concrete event every producer in the service uses.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

// envelope is the wire shape shared by every transport.
type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func Encode(e Event) ([]byte, error) {
	raw, err := json.Marshal(envelope{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventType(), err)
	}
	return raw, nil
}

func Decode(raw []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		return BaseEvent{}, fmt.Errorf("decode event: missing type")
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
