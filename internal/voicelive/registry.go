package voicelive

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry creates and tracks live sessions for each connected browser
// client. The lock brackets only the map mutation, never the connect or
// disconnect I/O, so one session's network latency cannot block operations on
// unrelated sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	wsURL  string
	apiKey string
	config SessionConfig
	tools  ToolDispatcher
	logger *zap.Logger
}

// NewRegistry creates a session registry. Every session it creates connects
// to wsURL with the given credential and immutable session configuration.
func NewRegistry(wsURL, apiKey string, cfg SessionConfig, tools ToolDispatcher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		wsURL:    wsURL,
		apiKey:   apiKey,
		config:   cfg,
		tools:    tools,
		logger:   logger,
	}
}

// Create constructs a session under a fresh id and establishes its upstream
// connection. The connect must succeed or the session is not registered.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.New().String()
	session := newSession(id, r.wsURL, r.apiKey, r.config, r.tools, r.logger)
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	r.logger.Info("created voice live session", zap.String("session_id", id))
	return session, nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns a snapshot of the registered session ids.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Remove tears down a session and releases its resources. Removing an absent
// id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	session.Close()
	r.logger.Info("removed session", zap.String("session_id", id))
}

// CloseAll removes every session. Used on graceful shutdown.
func (r *Registry) CloseAll() {
	for _, id := range r.List() {
		r.Remove(id)
	}
}
