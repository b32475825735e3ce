// Package parley is the top-level entry point: it wires configuration,
// the record store, and the assistant endpoint into an App from which
// sessions are opened and chatted.
package parley

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/pkg/assistant"
	"github.com/parley-ai/parley/pkg/chat"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/record"
	"github.com/parley-ai/parley/pkg/record/firestore"
	pkgobs "github.com/parley-ai/parley/pkg/observability"
)

// App holds the wired subsystems for one configured deployment: the
// record store, the assistant endpoint client, and the configuration
// they came from.
type App struct {
	cfg    *config.Config
	store  record.Store
	remote assistant.Client
}

// Open wires an App from configuration. A nil cfg uses the defaults
// (memory store, localhost endpoint). Tracing is initialized from the
// environment; a failure there is logged and does not block startup.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := observability.InitFromEnv(); err != nil {
		log.Printf("Warning: Failed to initialize observability: %v", err)
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		store:  store,
		remote: assistant.NewHTTPClient(cfg.Endpoint),
	}, nil
}

// openStore builds the record store named by the config.
func openStore(ctx context.Context, cfg config.StoreConfig) (record.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return record.NewMemoryStore(), nil

	case "redis":
		store, err := record.NewRedisStore(record.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			RecordTTL: cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil

	case "firestore":
		opts := []firestore.Option{firestore.WithProjectID(cfg.Firestore.Project)}
		if cfg.Firestore.CredentialsFile != "" {
			opts = append(opts, firestore.WithCredentialsFile(cfg.Firestore.CredentialsFile))
		}
		store, err := firestore.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// Config returns the configuration the App was opened with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Store exposes the record store for direct transcript access.
func (a *App) Store() record.Store {
	return a.store
}

// NewSession creates a fresh local session owned by the configured
// user. The server half of the session is established by the first
// turn sent through Chat.
func (a *App) NewSession(ctx context.Context, title string) (*record.Session, error) {
	if title == "" {
		title = record.DefaultTitle
	}

	now := time.Now().UTC()
	session := &record.Session{
		ID:        uuid.NewString(),
		UserID:    a.cfg.UserID,
		Title:     title,
		FirstTurn: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	pkgobs.RecordSessionCreated()
	log.Printf("[PARLEY] created session %s for user %s", session.ID, session.UserID)
	return session, nil
}

// ResumeSession loads an existing session by ID.
func (a *App) ResumeSession(ctx context.Context, sessionID string) (*record.Session, error) {
	return a.store.GetSession(ctx, sessionID)
}

// Chat opens a chat client on the session. The configured streaming
// mode applies unless overridden by an option.
func (a *App) Chat(session *record.Session, opts ...chat.Option) *chat.Client {
	merged := append([]chat.Option{chat.WithStreaming(a.cfg.Streaming)}, opts...)
	return chat.NewClient(a.store, a.remote, session, merged...)
}

// Sessions lists the configured user's sessions, most recently updated
// first.
func (a *App) Sessions(ctx context.Context, opts record.ListOptions) ([]*record.Session, error) {
	return a.store.ListSessions(ctx, a.cfg.UserID, opts)
}

// Messages returns a session's transcript in creation order.
func (a *App) Messages(ctx context.Context, sessionID string) ([]*record.Message, error) {
	return a.store.ListMessages(ctx, sessionID)
}

// DeleteSession removes a session and its transcript.
func (a *App) DeleteSession(ctx context.Context, sessionID string) error {
	return a.store.DeleteSession(ctx, sessionID)
}

// Close releases the store and flushes any pending trace spans.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := observability.Shutdown(ctx); err != nil {
		log.Printf("Warning: Failed to shutdown observability: %v", err)
	}
	return a.store.Close()
}
