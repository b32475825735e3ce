package record

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps all records in process memory. It is the default
// backend for development and tests; contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string]*Message
	// order holds message IDs per session in creation order.
	order  map[string][]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string]*Message),
		order:    make(map[string][]string),
	}
}

// CreateSession persists a new session.
func (s *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// UpdateSession applies a partial update to a session.
func (s *MemoryStore) UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	update.Apply(sess, time.Now().UTC())
	return nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (s *MemoryStore) ListSessions(ctx context.Context, userID string, opts ListOptions) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	matched := make([]*Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			matched = append(matched, cloneSession(sess))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	return paginate(matched, opts), nil
}

// DeleteSession removes a session and all messages it owns.
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	for _, id := range s.order[sessionID] {
		delete(s.messages, id)
	}
	delete(s.order, sessionID)
	return nil
}

// CreateMessage persists a new message.
func (s *MemoryStore) CreateMessage(ctx context.Context, message *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.messages[message.ID] = cloneMessage(message)
	s.order[message.SessionID] = append(s.order[message.SessionID], message.ID)
	return nil
}

// GetMessage retrieves a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// UpdateMessage applies a partial update to a message.
func (s *MemoryStore) UpdateMessage(ctx context.Context, messageID string, update MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	msg, ok := s.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	update.Apply(msg, time.Now().UTC())
	return nil
}

// ListMessages returns a session's messages in creation order.
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := s.order[sessionID]
	messages := make([]*Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			messages = append(messages, cloneMessage(msg))
		}
	}
	return messages, nil
}

// Close marks the store closed. Further operations return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate(sessions []*Session, opts ListOptions) []*Session {
	start := opts.Offset
	if start >= len(sessions) {
		return []*Session{}
	}
	end := len(sessions)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return sessions[start:end]
}

// Records are copied on the way in and out so callers never share memory
// with the store.
func cloneSession(s *Session) *Session {
	c := *s
	return &c
}

func cloneMessage(m *Message) *Message {
	c := *m
	if m.Metadata != nil {
		meta := *m.Metadata
		meta.DetectedIntents = append([]string(nil), m.Metadata.DetectedIntents...)
		meta.AgentResponses = append([]AgentResult(nil), m.Metadata.AgentResponses...)
		c.Metadata = &meta
	}
	return &c
}
