package record

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound is returned when a message doesn't exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("record store is closed")
)

// Store abstracts session and message persistence.
// Implementations must be safe for concurrent use and must guarantee
// read-after-write consistency for single-record updates. No cross-record
// transactions are required.
type Store interface {
	// CreateSession persists a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID.
	// Returns ErrSessionNotFound if the session doesn't exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSession applies a partial update to a session.
	// Returns ErrSessionNotFound if the session doesn't exist.
	UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error

	// ListSessions returns a user's sessions, most recently updated first.
	ListSessions(ctx context.Context, userID string, opts ListOptions) ([]*Session, error)

	// DeleteSession removes a session and all messages it owns.
	DeleteSession(ctx context.Context, sessionID string) error

	// CreateMessage persists a new message.
	CreateMessage(ctx context.Context, message *Message) error

	// GetMessage retrieves a message by ID.
	// Returns ErrMessageNotFound if the message doesn't exist.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// UpdateMessage applies a partial update to a message.
	// Returns ErrMessageNotFound if the message doesn't exist.
	UpdateMessage(ctx context.Context, messageID string, update MessageUpdate) error

	// ListMessages returns a session's messages in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Close releases any resources held by the store.
	Close() error
}

// ListOptions provides pagination for session listing.
type ListOptions struct {
	// Limit caps the number of results (0 = no limit).
	Limit int
	// Offset skips the first N results.
	Offset int
}

// SessionUpdate is a partial session update. Nil fields are left untouched.
type SessionUpdate struct {
	Title           *string
	ServerSessionID *string
	ThreadID        *string
	LastResponseID  *string
	FirstTurn       *bool
}

// Apply copies the set fields onto the session and stamps UpdatedAt.
func (u SessionUpdate) Apply(s *Session, now time.Time) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.ServerSessionID != nil {
		s.ServerSessionID = *u.ServerSessionID
	}
	if u.ThreadID != nil {
		s.ThreadID = *u.ThreadID
	}
	if u.LastResponseID != nil {
		s.LastResponseID = *u.LastResponseID
	}
	if u.FirstTurn != nil {
		s.FirstTurn = *u.FirstTurn
	}
	s.UpdatedAt = now
}

// MessageUpdate is a partial message update. Nil fields are left untouched.
type MessageUpdate struct {
	Content      *string
	Status       *MessageStatus
	ErrorMessage *string
	Metadata     *TurnMetadata
}

// Apply copies the set fields onto the message and stamps UpdatedAt.
func (u MessageUpdate) Apply(m *Message, now time.Time) {
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.ErrorMessage != nil {
		m.ErrorMessage = *u.ErrorMessage
	}
	if u.Metadata != nil {
		m.Metadata = u.Metadata
	}
	m.UpdatedAt = now
}
