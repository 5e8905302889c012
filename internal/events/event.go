package events

import (
	"encoding/json"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/ids"
)

type EventType string

const (
	EventTypeSessionProvisioned EventType = "session.provisioned"
	EventTypeRecordReconciled   EventType = "record.reconciled"
	EventTypeRecordFailed       EventType = "record.failed"
	EventTypeRecordingStarted   EventType = "recording.started"
	EventTypeRecordingSkipped   EventType = "recording.skipped"
	EventTypeRecordingFailed    EventType = "recording.failed"
)

type Event struct {
	EventID    string          `json:"event_id"`
	EventType  EventType       `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	RoomName   string          `json:"room_name"`
	RoomSID    string          `json:"room_sid,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New builds an event stamped with a fresh id. A payload that fails to encode is
// dropped rather than failing the caller.
func New(eventType EventType, roomName, roomSID string, payload any, now time.Time) Event {
	event := Event{
		EventID:    ids.NewWithPrefix("evt_"),
		EventType:  eventType,
		OccurredAt: now.UTC(),
		RoomName:   roomName,
		RoomSID:    roomSID,
	}
	if payload != nil {
		if encoded, err := json.Marshal(payload); err == nil {
			event.Payload = encoded
		}
	}
	return event
}
