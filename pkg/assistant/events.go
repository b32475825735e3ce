package assistant

import (
	"encoding/json"
	"fmt"
)

// EventType tags a stream event.
type EventType string

const (
	// EventSessionContext carries the server correlation ids for the turn.
	EventSessionContext EventType = "session_context"
	// EventIntentClassification reports how the turn was routed.
	EventIntentClassification EventType = "intent_classification"
	// EventAgentResponse carries one sub-agent's result.
	EventAgentResponse EventType = "agent_response"
	// EventSummary carries the synthesized final reply for the turn.
	EventSummary EventType = "summary"
	// EventSessionEnd signals that the sequence is about to end. Informational.
	EventSessionEnd EventType = "session_end"
	// EventError reports a server-side failure and terminates the turn.
	EventError EventType = "error"
)

// StreamEvent is one tagged event from a turn's event sequence. Only the
// fields relevant to Type are set; the rest stay at their zero values.
type StreamEvent struct {
	Type EventType `json:"type"`

	// session_context
	ResponseID string `json:"response_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`

	// intent_classification
	DetectedIntents []string `json:"detected_intents,omitempty"`
	MultiIntent     bool     `json:"is_multi_intent,omitempty"`

	// agent_response
	Agent   string         `json:"agent,omitempty"`
	Success bool           `json:"success,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// agent_response, summary and session_end all carry message text.
	Message string `json:"message,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// decodeEvent parses one event payload. An undecodable payload or a
// missing type tag is a malformed event, which terminates the turn.
func decodeEvent(data []byte) (*StreamEvent, error) {
	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("malformed event: missing type tag")
	}
	return &event, nil
}
