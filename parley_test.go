package parley

import (
	"testing"

	"net/http/httptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/devserver"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/record"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	server := httptest.NewServer(devserver.New().Handler())
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Endpoint = server.URL
	cfg.UserID = "tester"

	app, err := Open(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = app.Close()
	})
	return app
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "cassette-tape"

	_, err := Open(t.Context(), cfg)
	require.Error(t, err)
}

func TestOpen_NilConfigUsesDefaults(t *testing.T) {
	app, err := Open(t.Context(), nil)
	require.NoError(t, err)
	defer func() {
		_ = app.Close()
	}()

	assert.Equal(t, "local", app.Config().UserID)
}

func TestApp_SessionLifecycle(t *testing.T) {
	app := newTestApp(t)
	ctx := t.Context()

	sess, err := app.NewSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, record.DefaultTitle, sess.Title)
	assert.Equal(t, "tester", sess.UserID)
	assert.True(t, sess.FirstTurn)

	resumed, err := app.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resumed.ID)

	listed, err := app.Sessions(ctx, record.ListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, app.DeleteSession(ctx, sess.ID))
	_, err = app.ResumeSession(ctx, sess.ID)
	assert.ErrorIs(t, err, record.ErrSessionNotFound)
}

func TestApp_ChatRoundTrip(t *testing.T) {
	app := newTestApp(t)
	ctx := t.Context()

	sess, err := app.NewSession(ctx, "")
	require.NoError(t, err)

	client := app.Chat(sess)
	msg, err := client.Send(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, record.StatusComplete, msg.Status)
	assert.NotEmpty(t, msg.Content)

	// First turn confirms the server-side session.
	assert.False(t, sess.FirstTurn)
	assert.NotEmpty(t, sess.ServerSessionID)
	assert.NotEmpty(t, sess.ThreadID)

	// The auto-title replaced the placeholder.
	stored, err := app.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Title)

	transcript, err := app.Messages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, record.RoleUser, transcript[0].Role)
	assert.Equal(t, record.RoleAssistant, transcript[1].Role)
}

func TestApp_ChatNonStreaming(t *testing.T) {
	app := newTestApp(t)
	app.Config().Streaming = false
	ctx := t.Context()

	sess, err := app.NewSession(ctx, "")
	require.NoError(t, err)

	msg, err := app.Chat(sess).Send(ctx, "what is the weather forecast")
	require.NoError(t, err)

	assert.Equal(t, record.StatusComplete, msg.Status)
	assert.NotEmpty(t, msg.Content)
	assert.False(t, sess.FirstTurn)
}
