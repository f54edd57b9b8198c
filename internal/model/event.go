package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a progress bus event.
type EventType string

const (
	EventWorkflowStarted  EventType = "workflow_started"
	EventAgentStarted     EventType = "agent_started"
	EventAgentProgress    EventType = "agent_progress"
	EventAgentCompleted   EventType = "agent_completed"
	EventDivergenceAlert  EventType = "divergence_alert"
	EventDivergenceClear  EventType = "divergence_clear"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowError    EventType = "workflow_error"
	EventPing             EventType = "ping"
)

// Event is one progress bus message. Events for a session are delivered in
// publish order; workflow_complete is terminal.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID uuid.UUID      `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     Stage          `json:"stage,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Terminal reports whether the event closes its session's subscriptions.
func (e Event) Terminal() bool {
	return e.Type == EventWorkflowComplete
}
