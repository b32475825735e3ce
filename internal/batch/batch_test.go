package batch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/devserver"
	"github.com/parley-ai/parley/pkg/assistant"
	"github.com/parley-ai/parley/pkg/record"
)

func TestRunner_Run(t *testing.T) {
	server := httptest.NewServer(devserver.New().Handler())
	defer server.Close()

	store := record.NewMemoryStore()
	remote := assistant.NewHTTPClient(server.URL)

	prompts := []string{
		"hello",
		"what is the weather forecast",
		"check my account balance",
	}

	runner := NewRunner(store, remote, Options{
		Concurrency: 2,
		Streaming:   true,
		UserID:      "eval",
	})
	report, err := runner.Run(t.Context(), prompts)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 3)

	// Result order follows prompt order regardless of worker scheduling.
	for i, res := range report.Results {
		assert.Equal(t, prompts[i], res.Prompt)
		assert.Equal(t, string(record.StatusComplete), res.Status)
		assert.NotEmpty(t, res.Reply)
		assert.NotEmpty(t, res.Intents)
	}

	// One session per prompt, each bootstrapped by its first turn.
	sessions, err := store.ListSessions(t.Context(), "eval", record.ListOptions{})
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for _, sess := range sessions {
		assert.False(t, sess.FirstTurn)
		assert.NotEmpty(t, sess.ServerSessionID)
	}
}

func TestRunner_CapturesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "backend down"})
	}))
	defer server.Close()

	store := record.NewMemoryStore()
	runner := NewRunner(store, assistant.NewHTTPClient(server.URL), Options{Streaming: true})

	report, err := runner.Run(t.Context(), []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, string(record.StatusError), report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "backend down")
}

func TestLoadPrompts_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.txt")
	content := "hello\n\n# a comment\nwhat is the weather\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "what is the weather"}, prompts)
}

func TestLoadPrompts_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.csv")
	content := "prompt,expected\nhello,greeting\nforecast please,weather\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "forecast please"}, prompts)
}

func TestLoadPrompts_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n# only comments\n"), 0o600))

	_, err := LoadPrompts(path)
	require.Error(t, err)
}

func TestReport_Write(t *testing.T) {
	report := &Report{
		StartedAt: time.Now(),
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Results: []Result{
			{Prompt: "hello", Reply: "hi", Status: "complete", Duration: 120 * time.Millisecond, Intents: []string{"greeting"}},
			{Prompt: "boom", Status: "error", Error: "cancelled", Duration: 10 * time.Millisecond},
		},
	}

	var jsonBuf bytes.Buffer
	require.NoError(t, report.Write(&jsonBuf, "json"))
	var decoded Report
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, report.Total, decoded.Total)

	var csvBuf bytes.Buffer
	require.NoError(t, report.Write(&csvBuf, "csv"))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "prompt")
	assert.Contains(t, lines[1], "greeting")
	assert.Contains(t, lines[2], "cancelled")

	require.Error(t, report.Write(&jsonBuf, "yaml"))
}
