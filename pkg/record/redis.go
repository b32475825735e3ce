package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis.
// It provides shared session storage suitable for multi-node deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all record keys (default: "parley:").
	Prefix string
	// RecordTTL is the record expiry duration (0 = never expire).
	RecordTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "parley:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.RecordTTL,
	}, nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "parley:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key helpers
func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *RedisStore) userIndexKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *RedisStore) messageKey(messageID string) string {
	return s.prefix + "message:" + messageID
}

func (s *RedisStore) messageOrderKey(sessionID string) string {
	return s.prefix + "messages:" + sessionID
}

func (s *RedisStore) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// CreateSession persists a new session.
func (s *RedisStore) CreateSession(ctx context.Context, session *Session) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
	pipe.SAdd(ctx, s.userIndexKey(session.UserID), session.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// UpdateSession applies a partial update to a session.
func (s *RedisStore) UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	update.Apply(session, time.Now().UTC())

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (s *RedisStore) ListSessions(ctx context.Context, userID string, opts ListOptions) ([]*Session, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Session expired or was deleted, clean up the index.
				s.client.SRem(ctx, s.userIndexKey(userID), id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})

	return paginate(sessions, opts), nil
}

// DeleteSession removes a session and all messages it owns.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	messageIDs, err := s.client.LRange(ctx, s.messageOrderKey(sessionID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("load message index: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range messageIDs {
		pipe.Del(ctx, s.messageKey(id))
	}
	pipe.Del(ctx, s.messageOrderKey(sessionID))
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.userIndexKey(session.UserID), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateMessage persists a new message.
func (s *RedisStore) CreateMessage(ctx context.Context, message *Message) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.messageKey(message.ID), data, s.ttl)
	pipe.RPush(ctx, s.messageOrderKey(message.SessionID), message.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.messageOrderKey(message.SessionID), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *RedisStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.messageKey(messageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &message, nil
}

// UpdateMessage applies a partial update to a message.
func (s *RedisStore) UpdateMessage(ctx context.Context, messageID string, update MessageUpdate) error {
	message, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	update.Apply(message, time.Now().UTC())

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.Set(ctx, s.messageKey(messageID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in creation order.
func (s *RedisStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, s.messageOrderKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load message index: %w", err)
	}

	messages := make([]*Message, 0, len(ids))
	for _, id := range ids {
		message, err := s.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				continue
			}
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Close releases resources held by the store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}
