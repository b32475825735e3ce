package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/assistant"
	"github.com/parley-ai/parley/pkg/record"
)

// ErrProtocolViolation marks a server response that would corrupt session
// correlation if applied. Turns terminate with it instead of proceeding.
var ErrProtocolViolation = errors.New("chat: protocol violation")

// titleLimit is the rune cutoff for auto-derived session titles.
const titleLimit = 48

// lifecycle is the single authorized mutator of session correlation
// state. Every field the server confirms flows through here; nothing
// else writes ServerSessionID, ThreadID, LastResponseID or FirstTurn.
type lifecycle struct {
	store record.Store
}

// prepareTurn builds the outbound request for one turn.
//
// The first turn of a session omits the continuation fields and sets
// EndSession true; every later turn carries both ids and sets it false.
// When no server session id is known yet on a continuation turn, the
// user id stands in as the resumption fallback.
func (l *lifecycle) prepareTurn(session *record.Session, text string) assistant.TurnRequest {
	req := assistant.TurnRequest{
		Query:      text,
		UserID:     session.UserID,
		EndSession: session.FirstTurn,
		Context:    map[string]any{},
	}

	if !session.FirstTurn {
		req.SessionID = session.ServerSessionID
		if req.SessionID == "" {
			req.SessionID = session.UserID
		}
		req.ThreadID = session.ThreadID
	}
	return req
}

// applySessionContext commits the server-confirmed correlation state
// carried by a session_context event.
//
// The last response id is refreshed on every turn. The session/thread id
// pair is committed once, on the first turn, and flips FirstTurn to
// false; the flip requires both ids. After the flip the server may keep
// echoing the same ids, but changing them is a protocol violation.
func (l *lifecycle) applySessionContext(ctx context.Context, session *record.Session, ev *assistant.StreamEvent) error {
	var update record.SessionUpdate

	if ev.ResponseID != "" && ev.ResponseID != session.LastResponseID {
		session.LastResponseID = ev.ResponseID
		update.LastResponseID = &ev.ResponseID
	}

	if session.FirstTurn {
		if ev.SessionID == "" || ev.ThreadID == "" {
			return fmt.Errorf("%w: session context missing correlation ids on first turn (session_id=%q thread_id=%q)",
				ErrProtocolViolation, ev.SessionID, ev.ThreadID)
		}
		confirmed := false
		session.ServerSessionID = ev.SessionID
		session.ThreadID = ev.ThreadID
		session.FirstTurn = false
		update.ServerSessionID = &ev.SessionID
		update.ThreadID = &ev.ThreadID
		update.FirstTurn = &confirmed
	} else if ev.SessionID != "" && ev.SessionID != session.ServerSessionID {
		return fmt.Errorf("%w: server session id changed mid-conversation (%s -> %s)",
			ErrProtocolViolation, session.ServerSessionID, ev.SessionID)
	}

	if update == (record.SessionUpdate{}) {
		return nil
	}
	if err := l.store.UpdateSession(ctx, session.ID, update); err != nil {
		return fmt.Errorf("commit session context: %w", err)
	}
	return nil
}

// maybeAutoTitle derives the session title from the first turn's text.
// It runs only while the title is still the placeholder, so a confirmed
// title is never overwritten by later turns.
func (l *lifecycle) maybeAutoTitle(ctx context.Context, session *record.Session, turnText string) error {
	if session.Title != record.DefaultTitle {
		return nil
	}

	title := deriveTitle(turnText)
	if title == "" {
		return nil
	}

	session.Title = title
	if err := l.store.UpdateSession(ctx, session.ID, record.SessionUpdate{Title: &title}); err != nil {
		return fmt.Errorf("commit session title: %w", err)
	}
	return nil
}

func deriveTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}
