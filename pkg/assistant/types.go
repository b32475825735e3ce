// Package assistant is the wire client for the remote assistant service.
// A turn is sent either as a streaming request, answered with a typed
// event sequence, or as a single request/response exchange. Both paths
// share the same TurnRequest shape.
package assistant

import "context"

// TurnRequest is the outbound shape for one turn.
//
// The continuation fields follow the service's bootstrap convention: a
// session's first turn omits SessionID and ThreadID and sets EndSession
// true; every later turn carries both and sets EndSession false. Getting
// this asymmetry wrong breaks the service's session correlation.
type TurnRequest struct {
	// Query is the user's turn text.
	Query string `json:"query"`
	// UserID identifies the requesting user.
	UserID string `json:"user_id"`
	// SessionID is the server session id, present on continuation turns only.
	SessionID string `json:"session_id,omitempty"`
	// ThreadID is the server thread id, present on continuation turns only.
	ThreadID string `json:"thread_id,omitempty"`
	// EndSession is true on a session's first turn, false afterwards.
	EndSession bool `json:"end_session"`
	// Context is a placeholder object the protocol requires on every
	// request. It must be non-nil so it serializes as {} rather than null.
	Context map[string]any `json:"context"`
}

// AgentResponse is one sub-agent result as carried on the wire.
type AgentResponse struct {
	Agent   string         `json:"agent"`
	Message string         `json:"message"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// TurnResponse is the single-response shape returned by the non-streaming
// variant of the send operation.
type TurnResponse struct {
	// Message is the final reply text.
	Message string `json:"message"`
	// SessionID and ThreadID are the server correlation ids for this session.
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
	// ResponseID is the response identifier, when the service provides one.
	ResponseID string `json:"response_id,omitempty"`
	// DetectedIntents lists the intents the turn was routed to.
	DetectedIntents []string `json:"detected_intents"`
	// AgentResponses holds every sub-agent result in order.
	AgentResponses []AgentResponse `json:"agent_responses"`
	// MultiIntent reports whether the turn resolved into multiple intents.
	MultiIntent bool `json:"is_multi_intent"`
	// ProcessingTime is the server-side wall-clock duration in seconds.
	ProcessingTime float64 `json:"processing_time"`
}

// Client sends turns to the assistant service.
type Client interface {
	// SendTurn sends a turn and waits for the single-response answer.
	SendTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error)

	// StreamTurn sends a turn and returns its event sequence. The caller
	// must drain or close the returned stream.
	StreamTurn(ctx context.Context, req TurnRequest) (EventStream, error)
}
