// Package devserver implements the assistant service's turn protocol
// for local development and tests: POST /chat/stream answers with the
// typed SSE event sequence, POST /chat with the single-response shape.
// Reply text comes from a pluggable Completer.
package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/pkg/assistant"
)

// Server handles assistant protocol requests.
type Server struct {
	completer Completer
	newID     func() string
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCompleter sets the completer producing per-intent reply text.
func WithCompleter(c Completer) Option {
	return func(s *Server) {
		s.completer = c
	}
}

// withIDs overrides id generation, for tests.
func withIDs(newID func() string) Option {
	return func(s *Server) {
		s.newID = newID
	}
}

// New creates a development server. Without options it uses the
// deterministic canned completer.
func New(opts ...Option) *Server {
	s := &Server{
		completer: CannedCompleter{},
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the assistant protocol.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/stream", s.handleStream)
	mux.HandleFunc("/chat", s.handleSend)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// ListenAndServe runs the server on the given port until it stops.
func (s *Server) ListenAndServe(port int) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	log.Printf("[DEVSERVER] listening on :%d", port)
	return srv.ListenAndServe()
}

// turn is one processed request: bootstrap ids, routing, and per-intent
// results, ready to be rendered as events or a single response.
type turn struct {
	responseID string
	sessionID  string
	threadID   string
	intents    []string
	multi      bool
	agents     []assistant.AgentResponse
	summary    string
	elapsed    time.Duration
}

// process runs classification and completion for one turn. A first turn
// (no session id supplied) gets freshly issued correlation ids; a
// continuation turn has its ids echoed back.
func (s *Server) process(r *http.Request, req assistant.TurnRequest) *turn {
	start := s.now()

	t := &turn{responseID: "resp-" + s.newID()}
	if req.SessionID == "" {
		t.sessionID = "sess-" + s.newID()
		t.threadID = "thr-" + s.newID()
	} else {
		t.sessionID = req.SessionID
		t.threadID = req.ThreadID
		if t.threadID == "" {
			t.threadID = "thr-" + s.newID()
		}
	}

	t.intents = classify(req.Query)
	t.multi = len(t.intents) > 1

	for _, intent := range t.intents {
		message, err := s.completer.Complete(r.Context(), intent, req.Query)
		resp := assistant.AgentResponse{
			Agent:   intent + "_agent",
			Message: message,
			Success: err == nil,
		}
		if err != nil {
			log.Printf("[DEVSERVER] completer failed for intent %s: %v", intent, err)
			resp.Message = ""
			resp.Data = map[string]any{"error": err.Error()}
		}
		t.agents = append(t.agents, resp)
	}

	if t.multi {
		t.summary = synthesize(t.agents)
	}

	t.elapsed = s.now().Sub(start)
	return t
}

// finalMessage is the single reply text for the whole turn: the summary
// when one was synthesized, otherwise the last successful agent result.
func (t *turn) finalMessage() string {
	if t.summary != "" {
		return t.summary
	}
	var message string
	for _, a := range t.agents {
		if a.Success && a.Message != "" {
			message = a.Message
		}
	}
	return message
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}

	_, span := observability.StartSpan(r.Context(), "devserver.stream", map[string]any{
		"turn.user_id": req.UserID,
	})
	defer span.End()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	t := s.process(r, req)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(ev assistant.StreamEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	emit(assistant.StreamEvent{
		Type:       assistant.EventSessionContext,
		ResponseID: t.responseID,
		SessionID:  t.sessionID,
		ThreadID:   t.threadID,
	})
	emit(assistant.StreamEvent{
		Type:            assistant.EventIntentClassification,
		DetectedIntents: t.intents,
		MultiIntent:     t.multi,
	})
	for _, a := range t.agents {
		emit(assistant.StreamEvent{
			Type:    assistant.EventAgentResponse,
			Agent:   a.Agent,
			Message: a.Message,
			Success: a.Success,
			Data:    a.Data,
		})
	}
	if t.summary != "" {
		emit(assistant.StreamEvent{
			Type:    assistant.EventSummary,
			Message: t.summary,
		})
	}
	emit(assistant.StreamEvent{
		Type:    assistant.EventSessionEnd,
		Message: "turn processed",
	})

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}

	_, span := observability.StartSpan(r.Context(), "devserver.send", map[string]any{
		"turn.user_id": req.UserID,
	})
	defer span.End()

	t := s.process(r, req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(assistant.TurnResponse{
		Message:         t.finalMessage(),
		SessionID:       t.sessionID,
		ThreadID:        t.threadID,
		ResponseID:      t.responseID,
		DetectedIntents: t.intents,
		AgentResponses:  t.agents,
		MultiIntent:     t.multi,
		ProcessingTime:  t.elapsed.Seconds(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request) (assistant.TurnRequest, bool) {
	var req assistant.TurnRequest

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return req, false
	}
	return req, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
