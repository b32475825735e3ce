// Package record provides durable storage for chat sessions and messages.
// A Session correlates a sequence of turns with the server-issued session
// and thread identifiers; Messages hold the per-turn transcript together
// with the structured metadata accumulated while a turn streamed.
package record

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the assistant service.
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks a message through its lifecycle.
type MessageStatus string

const (
	// StatusPending means the turn was admitted but no response has arrived yet.
	StatusPending MessageStatus = "pending"
	// StatusStreaming means the event sequence is open and content may still change.
	StatusStreaming MessageStatus = "streaming"
	// StatusComplete is the terminal success state.
	StatusComplete MessageStatus = "complete"
	// StatusError is the terminal failure state, including cancellation.
	StatusError MessageStatus = "error"
)

// Terminal reports whether the status is final.
func (s MessageStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// DefaultTitle is the placeholder label a session carries until the first
// successful turn commits an auto-derived title.
const DefaultTitle = "New conversation"

// Session is the durable conversation context for a sequence of turns.
type Session struct {
	// ID is the client-local session identifier.
	ID string `json:"id"`
	// UserID identifies the user the session belongs to.
	UserID string `json:"userId"`
	// Title is the display label. Auto-derived from the first turn while
	// it still equals DefaultTitle.
	Title string `json:"title"`
	// ServerSessionID is the server-issued session identifier. Empty until
	// the first turn's bootstrap completes.
	ServerSessionID string `json:"serverSessionId,omitempty"`
	// ThreadID is the server-issued thread identifier. Empty until the
	// first turn's bootstrap completes.
	ThreadID string `json:"threadId,omitempty"`
	// LastResponseID is the resumption token for the next turn, refreshed
	// on every turn.
	LastResponseID string `json:"lastResponseId,omitempty"`
	// FirstTurn is true until the first turn completes its bootstrap.
	FirstTurn bool `json:"firstTurn"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the session was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgentResult is one sub-agent's contribution to a turn, in arrival order.
type AgentResult struct {
	// Agent names the sub-agent that produced this result.
	Agent string `json:"agent"`
	// Message is the text the sub-agent produced.
	Message string `json:"message"`
	// Success reports whether the sub-agent handled its intent.
	Success bool `json:"success"`
	// Data carries optional structured payload from the sub-agent.
	Data map[string]any `json:"data,omitempty"`
}

// TurnMetadata is the structured bundle accumulated while a turn is
// processed: routing decisions, per-agent results, timing, and raw
// request/response snapshots kept for operator debugging.
type TurnMetadata struct {
	// ResponseID is the response identifier the server assigned to this turn.
	ResponseID string `json:"responseId,omitempty"`
	// DetectedIntents lists the intents the server routed the turn to.
	DetectedIntents []string `json:"detectedIntents,omitempty"`
	// MultiIntent reports whether the turn resolved into multiple intents.
	MultiIntent bool `json:"multiIntent,omitempty"`
	// AgentResponses holds every sub-agent result in arrival order.
	AgentResponses []AgentResult `json:"agentResponses,omitempty"`
	// ProcessingTime is the wall-clock turn duration in seconds.
	ProcessingTime float64 `json:"processingTime,omitempty"`
	// RequestSnapshot is the raw turn request as sent.
	RequestSnapshot json.RawMessage `json:"requestSnapshot,omitempty"`
	// ResponseSnapshot is the turn outcome reconstructed as a single
	// response, symmetric with the non-streaming variant.
	ResponseSnapshot json.RawMessage `json:"responseSnapshot,omitempty"`
}

// Message is one entry in a session transcript.
type Message struct {
	// ID is the unique message identifier.
	ID string `json:"id"`
	// SessionID links to the owning session.
	SessionID string `json:"sessionId"`
	// Role identifies the author.
	Role Role `json:"role"`
	// Content is the display text. For assistant messages it may change
	// while Status is StatusStreaming and is final once terminal.
	Content string `json:"content"`
	// Status tracks the message lifecycle.
	Status MessageStatus `json:"status"`
	// ErrorMessage holds the failure reason when Status is StatusError.
	ErrorMessage string `json:"errorMessage,omitempty"`
	// Metadata is the turn's structured bundle, assistant messages only.
	Metadata *TurnMetadata `json:"metadata,omitempty"`
	// CreatedAt is when the message was created. Creation order defines
	// transcript order within a session.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the message was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}
