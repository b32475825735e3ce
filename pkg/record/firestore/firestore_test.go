package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/record"
)

// newEmulatorStore connects to the Firestore emulator, skipping when one
// is not running (set FIRESTORE_EMULATOR_HOST to enable).
func newEmulatorStore(t *testing.T) *FirestoreStore {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping firestore tests")
	}

	store, err := New(context.Background(), WithProjectID("parley-test"))
	if err != nil {
		t.Fatalf("connect to emulator: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestNew_RequiresProject(t *testing.T) {
	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected error for missing project ID")
	}
}

func TestFirestoreStore_SessionRoundTrip(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := &record.Session{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		Title:     record.DefaultTitle,
		FirstTurn: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	firstTurn := false
	serverID := "s1"
	if err := store.UpdateSession(ctx, sess.ID, record.SessionUpdate{
		FirstTurn:       &firstTurn,
		ServerSessionID: &serverID,
	}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.FirstTurn || got.ServerSessionID != "s1" || got.Title != record.DefaultTitle {
		t.Errorf("unexpected session: %+v", got)
	}

	listed, err := store.ListSessions(ctx, sess.UserID, record.ListOptions{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sess.ID {
		t.Errorf("unexpected listing: %+v", listed)
	}
}

func TestFirestoreStore_MessageMetadataRoundTrip(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sessionID := uuid.NewString()
	msg := &record.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      record.RoleAssistant,
		Content:   "partial",
		Status:    record.StatusStreaming,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	content := "the forecast is sunny"
	status := record.StatusComplete
	meta := &record.TurnMetadata{
		ResponseID:      "r1",
		DetectedIntents: []string{"weather"},
		AgentResponses: []record.AgentResult{
			{Agent: "weather_agent", Message: content, Success: true},
		},
		ProcessingTime: 0.42,
	}
	if err := store.UpdateMessage(ctx, msg.ID, record.MessageUpdate{
		Content:  &content,
		Status:   &status,
		Metadata: meta,
	}); err != nil {
		t.Fatalf("update message: %v", err)
	}

	got, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Content != content || got.Status != record.StatusComplete {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Metadata == nil || got.Metadata.ResponseID != "r1" || len(got.Metadata.AgentResponses) != 1 {
		t.Errorf("metadata did not survive the round trip: %+v", got.Metadata)
	}
}

func TestFirestoreStore_DeleteCascade(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	sess := &record.Session{ID: uuid.NewString(), UserID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	msg := &record.Message{ID: uuid.NewString(), SessionID: sess.ID, Role: record.RoleUser, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.GetSession(ctx, sess.ID); !errors.Is(err, record.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := store.GetMessage(ctx, msg.ID); !errors.Is(err, record.ErrMessageNotFound) {
		t.Fatalf("expected message gone, got %v", err)
	}
}
