package devserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parley-ai/parley/pkg/assistant"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	n := 0
	return New(withIDs(func() string {
		n++
		return fmt.Sprintf("%04d", n)
	}))
}

func postTurn(t *testing.T, handler http.Handler, path string, req assistant.TurnRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func decodeEvents(t *testing.T, body string) []assistant.StreamEvent {
	t.Helper()
	var events []assistant.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var ev assistant.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStream_FirstTurnEventOrder(t *testing.T) {
	srv := newTestServer(t)

	rec := postTurn(t, srv.Handler(), "/chat/stream", assistant.TurnRequest{
		Query:      "hello",
		UserID:     "u1",
		EndSession: true,
		Context:    map[string]any{},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.HasSuffix(strings.TrimSpace(rec.Body.String()), "data: [DONE]") {
		t.Error("expected stream to end with [DONE]")
	}

	events := decodeEvents(t, rec.Body.String())
	want := []assistant.EventType{
		assistant.EventSessionContext,
		assistant.EventIntentClassification,
		assistant.EventAgentResponse,
		assistant.EventSessionEnd,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event %d: expected %s, got %s", i, typ, events[i].Type)
		}
	}

	ctxEv := events[0]
	if ctxEv.SessionID == "" || ctxEv.ThreadID == "" || ctxEv.ResponseID == "" {
		t.Errorf("first turn must issue all correlation ids, got %+v", ctxEv)
	}
	if !strings.HasPrefix(ctxEv.SessionID, "sess-") || !strings.HasPrefix(ctxEv.ThreadID, "thr-") {
		t.Errorf("unexpected id shapes: %+v", ctxEv)
	}

	if got := events[1].DetectedIntents; len(got) != 1 || got[0] != "greeting" {
		t.Errorf("expected [greeting], got %v", got)
	}
	if events[1].MultiIntent {
		t.Error("single intent must not set the multi-intent flag")
	}
}

func TestStream_ContinuationEchoesIDs(t *testing.T) {
	srv := newTestServer(t)

	rec := postTurn(t, srv.Handler(), "/chat/stream", assistant.TurnRequest{
		Query:     "what's the weather like",
		UserID:    "u1",
		SessionID: "sess-existing",
		ThreadID:  "thr-existing",
		Context:   map[string]any{},
	})

	events := decodeEvents(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	ctxEv := events[0]
	if ctxEv.SessionID != "sess-existing" || ctxEv.ThreadID != "thr-existing" {
		t.Errorf("continuation turn must echo ids, got %+v", ctxEv)
	}
	if ctxEv.ResponseID == "" {
		t.Error("every turn must carry a fresh response id")
	}
}

func TestStream_MultiIntentSummary(t *testing.T) {
	srv := newTestServer(t)

	rec := postTurn(t, srv.Handler(), "/chat/stream", assistant.TurnRequest{
		Query:   "hello, what is the weather forecast?",
		UserID:  "u1",
		Context: map[string]any{},
	})

	events := decodeEvents(t, rec.Body.String())

	var intents assistant.StreamEvent
	var agentCount int
	var summary *assistant.StreamEvent
	for i := range events {
		switch events[i].Type {
		case assistant.EventIntentClassification:
			intents = events[i]
		case assistant.EventAgentResponse:
			agentCount++
		case assistant.EventSummary:
			summary = &events[i]
		}
	}

	if !intents.MultiIntent || len(intents.DetectedIntents) != 2 {
		t.Fatalf("expected two intents with multi flag, got %+v", intents)
	}
	if agentCount != 2 {
		t.Errorf("expected one agent response per intent, got %d", agentCount)
	}
	if summary == nil {
		t.Fatal("multi-intent turn must emit a summary")
	}
	if !strings.Contains(summary.Message, cannedReplies["greeting"]) ||
		!strings.Contains(summary.Message, cannedReplies["weather"]) {
		t.Errorf("summary must combine agent replies, got %q", summary.Message)
	}
}

func TestSend_SingleResponseShape(t *testing.T) {
	srv := newTestServer(t)

	rec := postTurn(t, srv.Handler(), "/chat", assistant.TurnRequest{
		Query:      "hello",
		UserID:     "u1",
		EndSession: true,
		Context:    map[string]any{},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp assistant.TurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != cannedReplies["greeting"] {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.SessionID == "" || resp.ThreadID == "" || resp.ResponseID == "" {
		t.Errorf("first turn must issue correlation ids, got %+v", resp)
	}
	if len(resp.AgentResponses) != 1 || !resp.AgentResponses[0].Success {
		t.Errorf("expected one successful agent response, got %+v", resp.AgentResponses)
	}
}

func TestDecodeTurn_Validation(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	tests := []struct {
		name string
		req  assistant.TurnRequest
	}{
		{"missing query", assistant.TurnRequest{UserID: "u1"}},
		{"missing user id", assistant.TurnRequest{Query: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postTurn(t, handler, "/chat", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected error field in body")
			}
		})
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestCannedCompleter_Deterministic(t *testing.T) {
	c := CannedCompleter{}
	for range 3 {
		got, err := c.Complete(t.Context(), "weather", "forecast please")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != cannedReplies["weather"] {
			t.Fatalf("unexpected reply: %q", got)
		}
	}

	echo, err := c.Complete(t.Context(), "smalltalk", "  just chatting  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if echo != "You said: just chatting" {
		t.Fatalf("unexpected fallback reply: %q", echo)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"hello there", []string{"greeting"}},
		{"will it rain tomorrow", []string{"weather"}},
		{"hello, check my account balance", []string{"greeting", "account"}},
		{"completely unrelated", []string{"smalltalk"}},
	}
	for _, tt := range tests {
		got := classify(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("classify(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("classify(%q) = %v, want %v", tt.query, got, tt.want)
				break
			}
		}
	}
}
