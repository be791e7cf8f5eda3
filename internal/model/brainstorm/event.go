package brainstorm

import "time"

// EventType names a live channel event.
type EventType string

const (
	EventStreamStart    EventType = "streamStart"
	EventStreamChunk    EventType = "streamChunk"
	EventStreamComplete EventType = "streamComplete"
	EventStreamError    EventType = "streamError"
	EventSessionStatus  EventType = "sessionStatus"
)

// Event is published to every subscriber of a session topic. It is never persisted.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Speaker   Speaker   `json:"speaker,omitempty"`
	TurnID    string    `json:"turnId,omitempty"`
	Text      string    `json:"text,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, sessionID string) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StatusEvent announces a state machine transition.
func StatusEvent(sessionID string, status Status) Event {
	evt := NewEvent(EventSessionStatus, sessionID)
	evt.Status = status
	return evt
}
