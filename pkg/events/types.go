package events

import "time"

// EventType identifies the kind of event emitted by the assistant.
type EventType string

const (
	EventSessionStart      EventType = "session.start"
	EventSessionEnd        EventType = "session.end"
	EventIntentExtracted   EventType = "intent.extracted"
	EventIntentExecuted    EventType = "intent.executed"
	EventIntentFailed      EventType = "intent.failed"
	EventCapabilityChanged EventType = "capability.changed"
	EventConsentDecision   EventType = "consent.decision"
	EventModeChanged       EventType = "mode.changed"
	EventAgentMessage      EventType = "agent.message"
)

// Event represents a single assistant event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id,omitempty"`
	Data      any           `json:"data"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}
