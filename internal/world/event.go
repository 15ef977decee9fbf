package world

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeStep              // Tick boundary with contact counts
	EventTypeBodyAdded
	EventTypeBodyRemoved
	EventTypeTileChanged
	EventTypeTileContact
	EventTypeBodyContact
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`   // Schema version
	Type      EventType       `json:"type"`      // Event type
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	Tick      uint64          `json:"tick"`      // World tick this occurred in
	BodyID    string          `json:"bodyId"`    // Source body (for rate limiting)
	Payload   json.RawMessage `json:"payload"`   // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeStep:
		return "step"
	case EventTypeBodyAdded:
		return "body_added"
	case EventTypeBodyRemoved:
		return "body_removed"
	case EventTypeTileChanged:
		return "tile_changed"
	case EventTypeTileContact:
		return "tile_contact"
	case EventTypeBodyContact:
		return "body_contact"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type by name in the JSONL output.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// NewEvent creates an event with the payload JSON-encoded.
// A payload that fails to encode is dropped, leaving the envelope.
func NewEvent(eventType EventType, tick uint64, bodyID string, payload interface{}) Event {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		BodyID:    bodyID,
		Payload:   data,
	}
}

// StepPayload summarizes one tick.
type StepPayload struct {
	Bodies       int   `json:"bodies"`
	TileContacts int   `json:"tileContacts"`
	BodyContacts int   `json:"bodyContacts"`
	DurationNs   int64 `json:"durationNs"`
}

// TilePayload records a tile edit.
type TilePayload struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	ID int `json:"id"`
}
