package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamTurn_DecodesEventSequence(t *testing.T) {
	var gotBody TurnRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != streamPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"session_context\",\"response_id\":\"r1\",\"session_id\":\"s1\",\"thread_id\":\"t1\"}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"summary\",\"message\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	stream, err := client.StreamTurn(context.Background(), TurnRequest{
		Query:      "hello",
		UserID:     "u1",
		EndSession: true,
		Context:    map[string]any{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	if gotBody.Query != "hello" || gotBody.UserID != "u1" || !gotBody.EndSession {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if gotBody.Context == nil {
		t.Error("context placeholder must serialize as an object, not null")
	}

	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv first event: %v", err)
	}
	if first.Type != EventSessionContext || first.ResponseID != "r1" || first.SessionID != "s1" || first.ThreadID != "t1" {
		t.Errorf("unexpected first event: %+v", first)
	}

	second, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv second event: %v", err)
	}
	if second.Type != EventSummary || second.Message != "hi" {
		t.Errorf("unexpected second event: %+v", second)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("expected EOF after [DONE], got %v", err)
	}
}

func TestStreamTurn_MalformedEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"message\":\"no type tag\"}\n\n")
	}))
	defer server.Close()

	stream, err := NewHTTPClient(server.URL).StreamTurn(context.Background(), TurnRequest{Query: "q", UserID: "u", Context: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	if _, err := stream.Recv(); err == nil {
		t.Fatal("expected error for event without type tag")
	}
}

func TestStreamTurn_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  string
		retryable bool
	}{
		{http.StatusBadRequest, ErrorCodeInvalidRequest, false},
		{http.StatusNotFound, ErrorCodeNotFound, false},
		{http.StatusTooManyRequests, ErrorCodeRateLimit, true},
		{http.StatusBadGateway, ErrorCodeServerError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "server said no"})
			}))
			defer server.Close()

			_, err := NewHTTPClient(server.URL).StreamTurn(context.Background(), TurnRequest{Query: "q", UserID: "u", Context: map[string]any{}})
			if err == nil {
				t.Fatal("expected error")
			}

			var aerr *AssistantError
			if !errors.As(err, &aerr) {
				t.Fatalf("expected *AssistantError, got %T", err)
			}
			if aerr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, aerr.Code)
			}
			if aerr.IsRetryable != tt.retryable {
				t.Errorf("expected retryable=%v", tt.retryable)
			}
			if aerr.Message != "server said no" {
				t.Errorf("expected server-reported message, got %q", aerr.Message)
			}
			if aerr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, aerr.StatusCode)
			}
		})
	}
}

func TestStreamTurn_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"session_context\",\"response_id\":\"r1\"}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewHTTPClient(server.URL).StreamTurn(ctx, TurnRequest{Query: "q", UserID: "u", Context: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("recv first event: %v", err)
	}

	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Fatal("expected error after context cancellation")
	}
}

func TestSendTurn_DecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(TurnResponse{
			Message:         "hi",
			SessionID:       "s1",
			ThreadID:        "t1",
			DetectedIntents: []string{"greeting"},
			AgentResponses:  []AgentResponse{{Agent: "a", Message: "hi", Success: true}},
			ProcessingTime:  0.5,
		})
	}))
	defer server.Close()

	resp, err := NewHTTPClient(server.URL).SendTurn(context.Background(), TurnRequest{Query: "hello", UserID: "u1", Context: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message != "hi" || resp.SessionID != "s1" || resp.ThreadID != "t1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.AgentResponses) != 1 || !resp.AgentResponses[0].Success {
		t.Errorf("unexpected agent responses: %+v", resp.AgentResponses)
	}
}

func TestSendTurn_PlainTextErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "something broke")
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).SendTurn(context.Background(), TurnRequest{Query: "q", UserID: "u", Context: map[string]any{}})
	var aerr *AssistantError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *AssistantError, got %v", err)
	}
	if aerr.Message != "something broke" {
		t.Errorf("expected raw body as message, got %q", aerr.Message)
	}
	if aerr.Code != ErrorCodeServerError {
		t.Errorf("expected server_error, got %s", aerr.Code)
	}
}
