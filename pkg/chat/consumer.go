package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/parley-ai/parley/pkg/assistant"
	pkgobs "github.com/parley-ai/parley/pkg/observability"
	"github.com/parley-ai/parley/pkg/record"
)

// reasonCancelled is the terminal failure reason for a user-initiated
// stop. The UI renders it as "stopped" rather than "failed", so it must
// never be reused for genuine failures.
const reasonCancelled = "cancelled"

// turnState accumulates one turn's display content and metadata while
// the event sequence is dispatched. It is confined to the dispatch
// goroutine; no locking is needed.
type turnState struct {
	startedAt time.Time
	content   string
	meta      record.TurnMetadata
}

// outcome is the single terminal result of a turn, handed to the
// reconciler. reason is set only for StatusError outcomes.
type outcome struct {
	status  record.MessageStatus
	reason  string
	content string
	meta    *record.TurnMetadata
}

func (o outcome) label() string {
	switch {
	case o.status == record.StatusComplete:
		return "complete"
	case o.reason == reasonCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

func failing(state *turnState, reason string) outcome {
	return outcome{status: record.StatusError, reason: reason, content: state.content, meta: &state.meta}
}

func cancelled(state *turnState) outcome {
	return outcome{status: record.StatusError, reason: reasonCancelled, content: state.content, meta: &state.meta}
}

// consume drives one turn's event sequence until it is terminal: natural
// exhaustion completes the turn, an error event or transport fault fails
// it, and cancellation is observed between events. Partial content
// accumulated before a failure is kept for diagnostics.
func (c *Client) consume(ctx context.Context, stream assistant.EventStream, state *turnState) outcome {
	defer func() {
		_ = stream.Close()
	}()

	for {
		// Cooperative cancellation: checked between events only, so an
		// event already being dispatched runs to completion.
		if ctx.Err() != nil {
			return cancelled(state)
		}

		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return c.completing(state)
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return cancelled(state)
			}
			return failing(state, err.Error())
		}

		pkgobs.RecordStreamEvent(string(ev.Type))

		switch ev.Type {
		case assistant.EventSessionContext:
			if ev.ResponseID != "" {
				state.meta.ResponseID = ev.ResponseID
			}
			if err := c.life.applySessionContext(ctx, c.session, ev); err != nil {
				return failing(state, err.Error())
			}

		case assistant.EventIntentClassification:
			state.meta.DetectedIntents = append([]string(nil), ev.DetectedIntents...)
			state.meta.MultiIntent = ev.MultiIntent

		case assistant.EventAgentResponse:
			state.meta.AgentResponses = append(state.meta.AgentResponses, record.AgentResult{
				Agent:   ev.Agent,
				Message: ev.Message,
				Success: ev.Success,
				Data:    ev.Data,
			})
			// The latest successful sub-agent message replaces the
			// displayed content; failed results are recorded but never
			// shown.
			if ev.Success && ev.Message != "" {
				state.content = ev.Message
				c.notify(state.content)
			}

		case assistant.EventSummary:
			state.content = ev.Message
			c.notify(state.content)

		case assistant.EventSessionEnd:
			log.Printf("[CHAT] session %s: server signalled session end", c.session.ID)

		case assistant.EventError:
			return failing(state, ev.Error)

		default:
			log.Printf("[CHAT] session %s: ignoring unknown event type %q", c.session.ID, ev.Type)
		}
	}
}

// completing finalizes a successful turn: elapsed wall-clock time and a
// reconstructed single-response view of the whole turn, kept for
// operator debugging symmetry with the non-streaming variant.
func (c *Client) completing(state *turnState) outcome {
	if state.meta.ProcessingTime == 0 {
		state.meta.ProcessingTime = c.now().Sub(state.startedAt).Seconds()
	}
	state.meta.ResponseSnapshot = c.snapshotResponse(state)
	return outcome{status: record.StatusComplete, content: state.content, meta: &state.meta}
}

func (c *Client) snapshotResponse(state *turnState) json.RawMessage {
	wire := make([]assistant.AgentResponse, 0, len(state.meta.AgentResponses))
	for _, r := range state.meta.AgentResponses {
		wire = append(wire, assistant.AgentResponse{
			Agent:   r.Agent,
			Message: r.Message,
			Success: r.Success,
			Data:    r.Data,
		})
	}

	raw, err := json.Marshal(assistant.TurnResponse{
		Message:         state.content,
		SessionID:       c.session.ServerSessionID,
		ThreadID:        c.session.ThreadID,
		ResponseID:      state.meta.ResponseID,
		DetectedIntents: state.meta.DetectedIntents,
		AgentResponses:  wire,
		MultiIntent:     state.meta.MultiIntent,
		ProcessingTime:  state.meta.ProcessingTime,
	})
	if err != nil {
		return nil
	}
	return raw
}
