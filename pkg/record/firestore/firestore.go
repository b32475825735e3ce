// Package firestore implements the record store on Google Cloud Firestore.
// Sessions and messages live in two top-level collections; messages are
// queried by owning session and ordered client-side so no composite index
// is required.
package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parley-ai/parley/pkg/record"
)

const (
	sessionsCollection = "sessions"
	messagesCollection = "messages"
)

// FirestoreStore implements record.Store using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	mu     sync.RWMutex
	closed bool
}

var _ record.Store = (*FirestoreStore)(nil)

// Config contains configuration for the Firestore store.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Option configures a FirestoreStore.
type Option func(*Config)

// WithProjectID sets the GCP project ID.
func WithProjectID(projectID string) Option {
	return func(c *Config) {
		c.ProjectID = projectID
	}
}

// WithCredentialsFile sets the path to service account credentials.
// Without it, Application Default Credentials are used.
func WithCredentialsFile(path string) Option {
	return func(c *Config) {
		c.CredentialsFile = path
	}
}

// New creates a Firestore-backed record store.
func New(ctx context.Context, opts ...Option) (*FirestoreStore, error) {
	config := &Config{}
	for _, opt := range opts {
		opt(config)
	}

	if config.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if config.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, config.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

type sessionDoc struct {
	ID              string    `firestore:"id"`
	UserID          string    `firestore:"user_id"`
	Title           string    `firestore:"title"`
	ServerSessionID string    `firestore:"server_session_id"`
	ThreadID        string    `firestore:"thread_id"`
	LastResponseID  string    `firestore:"last_response_id"`
	FirstTurn       bool      `firestore:"first_turn"`
	CreatedAt       time.Time `firestore:"created_at"`
	UpdatedAt       time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	ID           string    `firestore:"id"`
	SessionID    string    `firestore:"session_id"`
	Role         string    `firestore:"role"`
	Content      string    `firestore:"content"`
	Status       string    `firestore:"status"`
	ErrorMessage string    `firestore:"error_message"`
	// Metadata is the JSON-encoded turn metadata bundle.
	Metadata  []byte    `firestore:"metadata"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func toSessionDoc(s *record.Session) sessionDoc {
	return sessionDoc{
		ID:              s.ID,
		UserID:          s.UserID,
		Title:           s.Title,
		ServerSessionID: s.ServerSessionID,
		ThreadID:        s.ThreadID,
		LastResponseID:  s.LastResponseID,
		FirstTurn:       s.FirstTurn,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (d sessionDoc) toSession() *record.Session {
	return &record.Session{
		ID:              d.ID,
		UserID:          d.UserID,
		Title:           d.Title,
		ServerSessionID: d.ServerSessionID,
		ThreadID:        d.ThreadID,
		LastResponseID:  d.LastResponseID,
		FirstTurn:       d.FirstTurn,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toMessageDoc(m *record.Message) (messageDoc, error) {
	doc := messageDoc{
		ID:           m.ID,
		SessionID:    m.SessionID,
		Role:         string(m.Role),
		Content:      m.Content,
		Status:       string(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Metadata != nil {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return messageDoc{}, fmt.Errorf("marshal metadata: %w", err)
		}
		doc.Metadata = data
	}
	return doc, nil
}

func (d messageDoc) toMessage() (*record.Message, error) {
	m := &record.Message{
		ID:           d.ID,
		SessionID:    d.SessionID,
		Role:         record.Role(d.Role),
		Content:      d.Content,
		Status:       record.MessageStatus(d.Status),
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if len(d.Metadata) > 0 {
		var meta record.TurnMetadata
		if err := json.Unmarshal(d.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		m.Metadata = &meta
	}
	return m, nil
}

func (f *FirestoreStore) sessionRef(sessionID string) *firestore.DocumentRef {
	return f.client.Collection(sessionsCollection).Doc(sessionID)
}

func (f *FirestoreStore) messageRef(messageID string) *firestore.DocumentRef {
	return f.client.Collection(messagesCollection).Doc(messageID)
}

func (f *FirestoreStore) checkClosed() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return record.ErrStoreClosed
	}
	return nil
}

// CreateSession persists a new session.
func (f *FirestoreStore) CreateSession(ctx context.Context, session *record.Session) error {
	if err := f.checkClosed(); err != nil {
		return err
	}

	if _, err := f.sessionRef(session.ID).Set(ctx, toSessionDoc(session)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (f *FirestoreStore) GetSession(ctx context.Context, sessionID string) (*record.Session, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}

	snap, err := f.sessionRef(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, record.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return doc.toSession(), nil
}

// UpdateSession applies a partial update to a session.
func (f *FirestoreStore) UpdateSession(ctx context.Context, sessionID string, update record.SessionUpdate) error {
	if err := f.checkClosed(); err != nil {
		return err
	}

	updates := []firestore.Update{
		{Path: "updated_at", Value: time.Now().UTC()},
	}
	if update.Title != nil {
		updates = append(updates, firestore.Update{Path: "title", Value: *update.Title})
	}
	if update.ServerSessionID != nil {
		updates = append(updates, firestore.Update{Path: "server_session_id", Value: *update.ServerSessionID})
	}
	if update.ThreadID != nil {
		updates = append(updates, firestore.Update{Path: "thread_id", Value: *update.ThreadID})
	}
	if update.LastResponseID != nil {
		updates = append(updates, firestore.Update{Path: "last_response_id", Value: *update.LastResponseID})
	}
	if update.FirstTurn != nil {
		updates = append(updates, firestore.Update{Path: "first_turn", Value: *update.FirstTurn})
	}

	if _, err := f.sessionRef(sessionID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return record.ErrSessionNotFound
		}
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (f *FirestoreStore) ListSessions(ctx context.Context, userID string, opts record.ListOptions) ([]*record.Session, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}

	iter := f.client.Collection(sessionsCollection).Where("user_id", "==", userID).Documents(ctx)
	defer iter.Stop()

	sessions := make([]*record.Session, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, doc.toSession())
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})

	start := opts.Offset
	if start >= len(sessions) {
		return []*record.Session{}, nil
	}
	end := len(sessions)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return sessions[start:end], nil
}

// DeleteSession removes a session and all messages it owns.
func (f *FirestoreStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := f.checkClosed(); err != nil {
		return err
	}

	if _, err := f.sessionRef(sessionID).Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return record.ErrSessionNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}

	bulkWriter := f.client.BulkWriter(ctx)

	iter := f.client.Collection(messagesCollection).Where("session_id", "==", sessionID).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return fmt.Errorf("iterate messages: %w", err)
		}
		if _, err := bulkWriter.Delete(snap.Ref); err != nil {
			bulkWriter.End()
			return fmt.Errorf("queue message delete: %w", err)
		}
	}

	if _, err := bulkWriter.Delete(f.sessionRef(sessionID)); err != nil {
		bulkWriter.End()
		return fmt.Errorf("queue session delete: %w", err)
	}

	bulkWriter.End()
	return nil
}

// CreateMessage persists a new message.
func (f *FirestoreStore) CreateMessage(ctx context.Context, message *record.Message) error {
	if err := f.checkClosed(); err != nil {
		return err
	}

	doc, err := toMessageDoc(message)
	if err != nil {
		return err
	}
	if _, err := f.messageRef(message.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (f *FirestoreStore) GetMessage(ctx context.Context, messageID string) (*record.Message, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}

	snap, err := f.messageRef(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, record.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return doc.toMessage()
}

// UpdateMessage applies a partial update to a message.
func (f *FirestoreStore) UpdateMessage(ctx context.Context, messageID string, update record.MessageUpdate) error {
	if err := f.checkClosed(); err != nil {
		return err
	}

	updates := []firestore.Update{
		{Path: "updated_at", Value: time.Now().UTC()},
	}
	if update.Content != nil {
		updates = append(updates, firestore.Update{Path: "content", Value: *update.Content})
	}
	if update.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*update.Status)})
	}
	if update.ErrorMessage != nil {
		updates = append(updates, firestore.Update{Path: "error_message", Value: *update.ErrorMessage})
	}
	if update.Metadata != nil {
		data, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		updates = append(updates, firestore.Update{Path: "metadata", Value: data})
	}

	if _, err := f.messageRef(messageID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return record.ErrMessageNotFound
		}
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in creation order.
func (f *FirestoreStore) ListMessages(ctx context.Context, sessionID string) ([]*record.Message, error) {
	if err := f.checkClosed(); err != nil {
		return nil, err
	}

	iter := f.client.Collection(messagesCollection).Where("session_id", "==", sessionID).Documents(ctx)
	defer iter.Stop()

	messages := make([]*record.Message, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msg, err := doc.toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})

	return messages, nil
}

// Close releases the underlying Firestore client.
func (f *FirestoreStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.client.Close()
}
