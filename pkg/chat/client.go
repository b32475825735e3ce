// Package chat implements the streaming session client: one Client per
// open session, sending turns to the assistant service, consuming the
// typed event sequence each turn produces, and reconciling the outcome
// into durable session and message records.
//
// A Client admits at most one turn at a time. Send drives the whole
// turn: admission, bootstrap framing, event dispatch, and exactly one
// terminal write, regardless of whether the turn completed, failed, or
// was cancelled.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/pkg/assistant"
	"github.com/parley-ai/parley/pkg/record"
	pkgobs "github.com/parley-ai/parley/pkg/observability"
)

// UpdateFunc receives the current display content after each dispatched
// event, for incremental rendering. It is never called after the
// terminal write.
type UpdateFunc func(content string)

// Client drives one session's turns against the assistant service.
// Methods are safe for concurrent use; concurrent Sends beyond the
// first are rejected with ErrTurnInFlight.
type Client struct {
	store   record.Store
	remote  assistant.Client
	session *record.Session
	life    *lifecycle
	guard   *guard

	streaming bool
	onUpdate  UpdateFunc
	now       func() time.Time
	newID     func() string
}

// Option configures a Client.
type Option func(*Client)

// WithStreaming selects between the streaming event sequence (default)
// and the single-response fallback. Both populate the same record
// fields, so callers are agnostic to which path ran.
func WithStreaming(enabled bool) Option {
	return func(c *Client) {
		c.streaming = enabled
	}
}

// WithUpdates registers a listener for incremental content updates.
func WithUpdates(fn UpdateFunc) Option {
	return func(c *Client) {
		c.onUpdate = fn
	}
}

// withClock overrides the wall clock, for tests.
func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// withIDs overrides message id generation, for tests.
func withIDs(newID func() string) Option {
	return func(c *Client) {
		c.newID = newID
	}
}

// NewClient creates a client for the given session. The session record
// must already exist in the store.
func NewClient(store record.Store, remote assistant.Client, session *record.Session, opts ...Option) *Client {
	c := &Client{
		store:     store,
		remote:    remote,
		session:   session,
		life:      &lifecycle{store: store},
		guard:     newGuard(),
		streaming: true,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session this client drives. The record is mutated
// in place as server-confirmed state arrives.
func (c *Client) Session() *record.Session {
	return c.session
}

// Cancel aborts the in-flight turn cooperatively. The turn still
// reconciles, with reason "cancelled". Calling Cancel while no turn is
// in flight is a no-op.
func (c *Client) Cancel() {
	c.guard.interrupt()
}

// Send sends one turn and returns the terminal assistant message, with
// status Complete or Error. The error return is reserved for admission
// rejection and record-store failures; endpoint and protocol faults are
// reported through the message's Status and ErrorMessage instead.
func (c *Client) Send(ctx context.Context, text string) (*record.Message, error) {
	turnCtx, ok := c.guard.admit(ctx)
	if !ok {
		return nil, ErrTurnInFlight
	}
	defer c.guard.release()

	mode := "stream"
	if !c.streaming {
		mode = "send"
	}

	pkgobs.IncActiveTurns()
	defer pkgobs.DecActiveTurns()

	turnCtx, span := observability.StartSpan(turnCtx, "chat.send_turn", map[string]any{
		"session.id": c.session.ID,
		"turn.mode":  mode,
	})
	defer span.End()

	start := c.now()

	userMsg := &record.Message{
		ID:        c.newID(),
		SessionID: c.session.ID,
		Role:      record.RoleUser,
		Content:   text,
		Status:    record.StatusComplete,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := c.store.CreateMessage(turnCtx, userMsg); err != nil {
		return nil, fmt.Errorf("create user message: %w", err)
	}

	asstMsg := &record.Message{
		ID:        c.newID(),
		SessionID: c.session.ID,
		Role:      record.RoleAssistant,
		Status:    record.StatusPending,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := c.store.CreateMessage(turnCtx, asstMsg); err != nil {
		return nil, fmt.Errorf("create assistant message: %w", err)
	}

	req := c.life.prepareTurn(c.session, text)
	state := &turnState{startedAt: start}
	if raw, err := json.Marshal(req); err == nil {
		state.meta.RequestSnapshot = raw
	}

	var out outcome
	if c.streaming {
		out = c.streamTurn(turnCtx, req, asstMsg.ID, state)
	} else {
		out = c.sendOnce(turnCtx, req, state)
	}

	pkgobs.RecordTurn(mode, out.label(), c.now().Sub(start))
	if out.status == record.StatusError {
		log.Printf("[CHAT] session %s: turn terminal with error: %s", c.session.ID, out.reason)
	}

	return c.reconcile(turnCtx, asstMsg.ID, text, out)
}

// streamTurn opens the event sequence and hands it to the consumer.
func (c *Client) streamTurn(ctx context.Context, req assistant.TurnRequest, messageID string, state *turnState) outcome {
	stream, err := c.remote.StreamTurn(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(state)
		}
		return failing(state, err.Error())
	}

	streaming := record.StatusStreaming
	if err := c.store.UpdateMessage(ctx, messageID, record.MessageUpdate{Status: &streaming}); err != nil {
		log.Printf("[CHAT] session %s: mark message streaming: %v", c.session.ID, err)
	}

	return c.consume(ctx, stream, state)
}

// sendOnce runs the single-response fallback through the same lifecycle
// mutator and terminal point as the streaming path.
func (c *Client) sendOnce(ctx context.Context, req assistant.TurnRequest, state *turnState) outcome {
	resp, err := c.remote.SendTurn(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(state)
		}
		return failing(state, err.Error())
	}

	if resp.ResponseID != "" {
		state.meta.ResponseID = resp.ResponseID
	}
	ev := &assistant.StreamEvent{
		Type:       assistant.EventSessionContext,
		ResponseID: resp.ResponseID,
		SessionID:  resp.SessionID,
		ThreadID:   resp.ThreadID,
	}
	if err := c.life.applySessionContext(ctx, c.session, ev); err != nil {
		return failing(state, err.Error())
	}

	state.meta.DetectedIntents = append([]string(nil), resp.DetectedIntents...)
	state.meta.MultiIntent = resp.MultiIntent
	for _, r := range resp.AgentResponses {
		state.meta.AgentResponses = append(state.meta.AgentResponses, record.AgentResult{
			Agent:   r.Agent,
			Message: r.Message,
			Success: r.Success,
			Data:    r.Data,
		})
	}
	if resp.ProcessingTime > 0 {
		state.meta.ProcessingTime = resp.ProcessingTime
	}

	state.content = resp.Message
	c.notify(state.content)

	return c.completing(state)
}

func (c *Client) notify(content string) {
	if c.onUpdate != nil {
		c.onUpdate(content)
	}
}
